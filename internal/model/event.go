package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType enumerates the kinds of campus events.
type EventType string

const (
	EventTypeWorkshop    EventType = "workshop"
	EventTypeConcert     EventType = "concert"
	EventTypeCompetition EventType = "competition"
	EventTypeSeminar     EventType = "seminar"
	EventTypeSports      EventType = "sports"
	EventTypeCultural    EventType = "cultural"
	EventTypeOther       EventType = "other"
)

// EventStatus controls public visibility of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
)

// Event represents a campus event published by an organizer.  Capacity is
// optional; a nil capacity means the event accepts any number of
// registrations.  RegisteredCount is maintained by the event store and must
// always equal the number of registrations referencing the event.
//
// Fields:
//
//	ID                 – opaque identifier (UUID).
//	ClubID             – optional owning club.
//	OrganizerID        – user who created the event.
//	RegistrationOpens  – start of the registration window.
//	RegistrationCloses – end of the registration window.
//	EventStarts        – when the event begins.
//	EventEnds          – when the event ends (strictly after EventStarts).
//	IsPaid / Price     – price is only meaningful for paid events.
//	Capacity           – nil for unlimited.
//	RegisteredCount    – number of accepted registrations.
//	Status             – draft or published.
type Event struct {
	ID                 string          `json:"id"`
	ClubID             *string         `json:"club_id,omitempty"`
	OrganizerID        string          `json:"organizer_id" validate:"required"`
	Title              string          `json:"title" validate:"required,max=100"`
	Description        string          `json:"description" validate:"required"`
	BannerURL          *string         `json:"banner_url,omitempty" validate:"omitempty,max=500"`
	Venue              string          `json:"venue" validate:"required,max=200"`
	EventType          EventType       `json:"event_type" validate:"required,oneof=workshop concert competition seminar sports cultural other"`
	RegistrationOpens  time.Time       `json:"registration_opens"`
	RegistrationCloses time.Time       `json:"registration_closes"`
	EventStarts        time.Time       `json:"event_starts"`
	EventEnds          time.Time       `json:"event_ends"`
	IsPaid             bool            `json:"is_paid"`
	Price              decimal.Decimal `json:"price"`
	Capacity           *int            `json:"capacity" validate:"omitempty,gt=0"`
	RegisteredCount    int             `json:"registered_count"`
	Status             EventStatus     `json:"status" validate:"required,oneof=draft published"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Validate checks field constraints and the ordering of the four event
// timestamps.  It returns a *ValidationError listing every violation.
func (e *Event) Validate() error {
	fields := structErrors(validate.Struct(e))
	stamps := []struct {
		name string
		at   time.Time
	}{
		{"registration_opens", e.RegistrationOpens},
		{"registration_closes", e.RegistrationCloses},
		{"event_starts", e.EventStarts},
		{"event_ends", e.EventEnds},
	}
	missing := false
	for _, s := range stamps {
		if s.at.IsZero() {
			fields = append(fields, FieldError{Field: s.name, Rule: "required"})
			missing = true
		}
	}
	if !missing {
		if e.RegistrationCloses.Before(e.RegistrationOpens) {
			fields = append(fields, FieldError{Field: "registration_closes", Rule: "gte_registration_opens"})
		}
		if e.EventStarts.Before(e.RegistrationCloses) {
			fields = append(fields, FieldError{Field: "event_starts", Rule: "gte_registration_closes"})
		}
		if !e.EventEnds.After(e.EventStarts) {
			fields = append(fields, FieldError{Field: "event_ends", Rule: "gt_event_starts"})
		}
	}
	if e.Price.IsNegative() {
		fields = append(fields, FieldError{Field: "price", Rule: "gte=0"})
	}
	if e.Capacity != nil && e.RegisteredCount > *e.Capacity {
		fields = append(fields, FieldError{Field: "capacity", Rule: "gte_registered_count"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// HasCapacityFor reports whether the advisory view of the event still has
// room for one more registration.  It is not authoritative under concurrent
// registrations; the event store's conditional increment is.
func (e *Event) HasCapacityFor() bool {
	return e.Capacity == nil || e.RegisteredCount < *e.Capacity
}

// Normalize trims free-text fields and truncates timestamps to whole seconds
// in UTC so that values round-trip identically through every storage driver.
func (e *Event) Normalize() {
	e.RegistrationOpens = normalizeTime(e.RegistrationOpens)
	e.RegistrationCloses = normalizeTime(e.RegistrationCloses)
	e.EventStarts = normalizeTime(e.EventStarts)
	e.EventEnds = normalizeTime(e.EventEnds)
	e.Title = trim(e.Title)
	e.Description = trim(e.Description)
	e.Venue = trim(e.Venue)
	if e.EventType == "" {
		e.EventType = EventTypeOther
	}
	if e.Status == "" {
		e.Status = EventStatusDraft
	}
	if !e.IsPaid {
		e.Price = decimal.Zero
	}
	e.Price = e.Price.Round(2)
}

// EventFilter narrows the public event listing.
type EventFilter struct {
	EventType *EventType
	IsPaid    *bool
}

// EventInput is the body accepted when an organizer creates an event.
type EventInput struct {
	ClubID             *string         `json:"club_id"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	BannerURL          *string         `json:"banner_url"`
	Venue              string          `json:"venue"`
	EventType          EventType       `json:"event_type"`
	RegistrationOpens  time.Time       `json:"registration_opens"`
	RegistrationCloses time.Time       `json:"registration_closes"`
	EventStarts        time.Time       `json:"event_starts"`
	EventEnds          time.Time       `json:"event_ends"`
	IsPaid             bool            `json:"is_paid"`
	Price              decimal.Decimal `json:"price"`
	Capacity           *int            `json:"capacity"`
	Status             EventStatus     `json:"status"`
}

// ToEvent builds a new, not yet persisted event owned by organizerID.
func (in EventInput) ToEvent(organizerID string) *Event {
	ev := &Event{
		ClubID:             in.ClubID,
		OrganizerID:        organizerID,
		Title:              in.Title,
		Description:        in.Description,
		BannerURL:          in.BannerURL,
		Venue:              in.Venue,
		EventType:          in.EventType,
		RegistrationOpens:  in.RegistrationOpens,
		RegistrationCloses: in.RegistrationCloses,
		EventStarts:        in.EventStarts,
		EventEnds:          in.EventEnds,
		IsPaid:             in.IsPaid,
		Price:              in.Price,
		Capacity:           in.Capacity,
		Status:             in.Status,
	}
	ev.Normalize()
	return ev
}

// EventPatch carries a partial update.  Nil fields are left untouched.
// RegisteredCount is deliberately absent: only the event store's
// conditional increment may change it.  ClearCapacity switches the event
// to unlimited capacity.
type EventPatch struct {
	ClubID             *string          `json:"club_id"`
	Title              *string          `json:"title"`
	Description        *string          `json:"description"`
	BannerURL          *string          `json:"banner_url"`
	Venue              *string          `json:"venue"`
	EventType          *EventType       `json:"event_type"`
	RegistrationOpens  *time.Time       `json:"registration_opens"`
	RegistrationCloses *time.Time       `json:"registration_closes"`
	EventStarts        *time.Time       `json:"event_starts"`
	EventEnds          *time.Time       `json:"event_ends"`
	IsPaid             *bool            `json:"is_paid"`
	Price              *decimal.Decimal `json:"price"`
	Capacity           *int             `json:"capacity"`
	ClearCapacity      bool             `json:"clear_capacity"`
	Status             *EventStatus     `json:"status"`
}

// Apply merges the patch into a copy of e and returns the result.
func (p EventPatch) Apply(e Event) Event {
	if p.ClubID != nil {
		e.ClubID = p.ClubID
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.BannerURL != nil {
		e.BannerURL = p.BannerURL
	}
	if p.Venue != nil {
		e.Venue = *p.Venue
	}
	if p.EventType != nil {
		e.EventType = *p.EventType
	}
	if p.RegistrationOpens != nil {
		e.RegistrationOpens = *p.RegistrationOpens
	}
	if p.RegistrationCloses != nil {
		e.RegistrationCloses = *p.RegistrationCloses
	}
	if p.EventStarts != nil {
		e.EventStarts = *p.EventStarts
	}
	if p.EventEnds != nil {
		e.EventEnds = *p.EventEnds
	}
	if p.IsPaid != nil {
		e.IsPaid = *p.IsPaid
	}
	if p.Price != nil {
		e.Price = *p.Price
	}
	if p.ClearCapacity {
		e.Capacity = nil
	} else if p.Capacity != nil {
		c := *p.Capacity
		e.Capacity = &c
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	e.Normalize()
	return e
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Second)
}
