package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/campusevents/ticketing/internal/handler"
	"github.com/campusevents/ticketing/internal/metrics"
	"github.com/campusevents/ticketing/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// a health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", metrics.Handler())
}

// RegisterAuth registers authentication routes.  Token-issuing operations
// live under /v1/auth without a session; /v1/auth/me requires a JWT.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout parses the bearer itself so a refresh token alone is enough.
	g.POST("/logout", a.Logout)

	g.GET("/me", a.Me, middleware.JWTAuth(jwtSecret))
}
