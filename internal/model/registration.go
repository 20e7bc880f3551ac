package model

import (
	"strings"
	"time"
)

// PaymentStatus is a placeholder; no payment integration moves it past its
// initial value.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentStatusFor returns the status a new registration starts with:
// completed for free events, pending for paid ones.
func PaymentStatusFor(e *Event) PaymentStatus {
	if e.IsPaid {
		return PaymentPending
	}
	return PaymentCompleted
}

// Registration records one student's accepted registration for an event.
// It is created exactly once and never updated; it disappears only when
// its event is deleted.
//
// Fields:
//
//	ID            – opaque identifier (UUID).
//	EventID       – registered event.
//	UserID        – registrant.
//	TicketID      – human-facing ticket code used for check-in.
//	Name..Year    – contact details captured at registration time.
//	PaymentStatus – completed for free events, pending for paid events.
//	RegisteredAt  – commit timestamp.
type Registration struct {
	ID            string        `json:"id"`
	EventID       string        `json:"event_id"`
	UserID        string        `json:"user_id"`
	TicketID      string        `json:"ticket_id"`
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone"`
	Branch        string        `json:"branch"`
	Year          string        `json:"year"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentID     *string       `json:"payment_id,omitempty"`
	RegisteredAt  time.Time     `json:"registered_at"`
}

// RegistrationWithEvent joins a registration with its event for ticket and
// dashboard listings.
type RegistrationWithEvent struct {
	Registration
	Event Event `json:"event"`
}

// ContactFields are supplied by the registrant.
type ContactFields struct {
	Name   string `json:"name" validate:"required,max=100"`
	Email  string `json:"email" validate:"required,email,max=200"`
	Phone  string `json:"phone" validate:"required,min=10,max=15"`
	Branch string `json:"branch" validate:"required,max=50"`
	Year   string `json:"year" validate:"required,max=10"`
}

// Normalize trims surrounding whitespace and lower-cases the email.
func (c ContactFields) Normalize() ContactFields {
	return ContactFields{
		Name:   trim(c.Name),
		Email:  strings.ToLower(trim(c.Email)),
		Phone:  trim(c.Phone),
		Branch: trim(c.Branch),
		Year:   trim(c.Year),
	}
}

// Validate returns a *ValidationError listing every violated field.
func (c ContactFields) Validate() error {
	if fields := structErrors(validate.Struct(c)); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
