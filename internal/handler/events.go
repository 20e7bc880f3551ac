package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/campusevents/ticketing/internal/model"
	"github.com/campusevents/ticketing/internal/service"
)

// EventHandler serves public browsing and student registration endpoints.
type EventHandler struct {
	Events        *service.EventService
	Registrations *service.RegistrationService
}

func NewEventHandler(events *service.EventService, regs *service.RegistrationService) *EventHandler {
	if events == nil || regs == nil {
		panic("nil service passed to NewEventHandler")
	}
	return &EventHandler{Events: events, Registrations: regs}
}

// List handles GET /v1/events.  Optional query parameters: type (event
// type) and paid (true/false).
func (h *EventHandler) List(c echo.Context) error {
	var f model.EventFilter
	if t := strings.TrimSpace(c.QueryParam("type")); t != "" && t != "all" {
		et := model.EventType(strings.ToLower(t))
		f.EventType = &et
	}
	if p := strings.TrimSpace(c.QueryParam("paid")); p != "" && p != "all" {
		paid, err := strconv.ParseBool(p)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "paid must be true or false"})
		}
		f.IsPaid = &paid
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	events, err := h.Events.ListPublished(ctx, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	ev, err := h.Events.Get(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// Register handles POST /v1/events/:id/register.  The body carries the
// registrant's contact fields; a 201 response carries the ticket.
func (h *EventHandler) Register(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body model.ContactFields
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	reg, err := h.Registrations.Register(ctx, c.Param("id"), userID, body)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, reg)
}

// MyRegistration handles GET /v1/events/:id/my-registration.  It returns
// null when the caller has not registered.
func (h *EventHandler) MyRegistration(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	reg, err := h.Registrations.GetForUser(ctx, c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, reg)
}

// Tickets handles GET /v1/users/tickets.
func (h *EventHandler) Tickets(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	items, err := h.Registrations.ListForUser(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}
