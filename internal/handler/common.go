package handler // handler defines the HTTP handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/campusevents/ticketing/internal/middleware"
	"github.com/campusevents/ticketing/internal/model"
	"github.com/campusevents/ticketing/internal/service"
)

// requestTimeout bounds the database work done for a single request.
const requestTimeout = 5 * time.Second

var errNoUser = errors.New("no authenticated user in context")

// getUserID returns the authenticated caller's ID set by JWTAuth.
func getUserID(c echo.Context) (string, error) {
	if id := middleware.UserID(c); id != "" {
		return id, nil
	}
	return "", errNoUser
}

// writeError maps service errors onto HTTP responses.  Conflicts carry a
// machine readable code next to the message; storage failures never leak
// their cause.
func writeError(c echo.Context, err error) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "errors": verr.Fields})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case errors.Is(err, service.ErrNotYetOpen):
		return conflict(c, "not_yet_open", "registration has not opened yet")
	case errors.Is(err, service.ErrClosed):
		return conflict(c, "closed", "registration has closed")
	case errors.Is(err, service.ErrSoldOut):
		return conflict(c, "sold_out", "event is sold out")
	case errors.Is(err, service.ErrAlreadyRegistered):
		return conflict(c, "already_registered", "already registered for this event")
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func conflict(c echo.Context, code, msg string) error {
	return c.JSON(http.StatusConflict, echo.Map{"error": msg, "code": code})
}
