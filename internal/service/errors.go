// Package service implements the registration, event management and
// dashboard logic on top of the repositories.
package service

import (
	"errors"

	"github.com/campusevents/ticketing/internal/model"
)

// Error kinds returned by the services.  Handlers map each one to an HTTP
// status; storage details never leave the service layer.
var (
	ErrNotFound          = errors.New("not found")
	ErrNotYetOpen        = errors.New("registration not yet open")
	ErrClosed            = errors.New("registration closed")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrSoldOut           = errors.New("event sold out")
	ErrForbidden         = errors.New("forbidden")
	ErrStorage           = errors.New("storage failure")

	// ErrInvalidInput is matched by every *model.ValidationError.
	ErrInvalidInput = model.ErrInvalidInput
)
