package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/campusevents/ticketing/internal/middleware"
	"github.com/campusevents/ticketing/internal/model"
	"github.com/campusevents/ticketing/internal/service"
)

// AdminHandler serves the organizer dashboard.  Role checks happen in
// RequireRole; ownership checks in the services.
type AdminHandler struct {
	Events        *service.EventService
	Registrations *service.RegistrationService
	Stats         *service.StatsService
}

func NewAdminHandler(events *service.EventService, regs *service.RegistrationService, stats *service.StatsService) *AdminHandler {
	if events == nil || regs == nil || stats == nil {
		panic("nil service passed to NewAdminHandler")
	}
	return &AdminHandler{Events: events, Registrations: regs, Stats: stats}
}

// GetStats handles GET /v1/admin/stats.
func (h *AdminHandler) GetStats(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	stats, err := h.Stats.GetStats(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// ListEvents handles GET /v1/admin/events: the caller's own events,
// drafts included.
func (h *AdminHandler) ListEvents(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	events, err := h.Events.ListByOrganizer(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// CreateEvent handles POST /v1/admin/events.
func (h *AdminHandler) CreateEvent(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var in model.EventInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	ev, err := h.Events.Create(ctx, userID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, ev)
}

// UpdateEvent handles PATCH /v1/admin/events/:id.
func (h *AdminHandler) UpdateEvent(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var patch model.EventPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	ev, err := h.Events.Update(ctx, c.Param("id"), userID, middleware.Role(c), patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// DeleteEvent handles DELETE /v1/admin/events/:id.  Its registrations go
// with it.
func (h *AdminHandler) DeleteEvent(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Events.Delete(ctx, c.Param("id"), userID, middleware.Role(c)); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// EventRegistrations handles GET /v1/admin/events/:id/registrations.
func (h *AdminHandler) EventRegistrations(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	regs, err := h.Registrations.ListForEvent(ctx, c.Param("id"), userID, middleware.Role(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, regs)
}
