package router

import (
	"github.com/labstack/echo/v4"

	"github.com/campusevents/ticketing/internal/handler"
	"github.com/campusevents/ticketing/internal/middleware"
)

// RegisterEvents registers public browsing and the authenticated student
// endpoints.  Only the listing is cached; a single event is always read
// fresh so edits and deletes show up at once.  Registration attempts are
// rate limited.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, jwtSecret string, cache, limit echo.MiddlewareFunc) {
	pub := e.Group("/v1/events")
	pub.GET("", h.List, cache)
	pub.GET("/:id", h.Get)

	auth := middleware.JWTAuth(jwtSecret)
	pub.GET("/:id/my-registration", h.MyRegistration, auth)
	pub.POST("/:id/register", h.Register, auth, limit)

	users := e.Group("/v1/users", auth)
	users.GET("/tickets", h.Tickets)
}
