package router

import (
	"github.com/labstack/echo/v4"

	"github.com/campusevents/ticketing/internal/handler"
	"github.com/campusevents/ticketing/internal/middleware"
	"github.com/campusevents/ticketing/internal/model"
)

// RegisterAdmin registers organizer endpoints under /v1/admin.  All routes
// require a JWT with the club_admin or super_admin role; per-event
// ownership is enforced by the services.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleClubAdmin, model.RoleSuperAdmin),
	)
	g.GET("/stats", h.GetStats)

	g.GET("/events", h.ListEvents)
	g.POST("/events", h.CreateEvent)
	g.PATCH("/events/:id", h.UpdateEvent)
	g.PUT("/events/:id", h.UpdateEvent)
	g.DELETE("/events/:id", h.DeleteEvent)
	g.GET("/events/:id/registrations", h.EventRegistrations)
}
