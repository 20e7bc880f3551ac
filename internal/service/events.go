package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/campusevents/ticketing/internal/model"
	"github.com/campusevents/ticketing/internal/repository"
)

// EventService exposes event browsing to everyone and event management to
// organizers.  Organizers manage their own events; super admins manage all.
type EventService struct {
	events *repository.EventRepo
	logger *slog.Logger
}

func NewEventService(events *repository.EventRepo, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{events: events, logger: logger}
}

// Get returns a published event.  Drafts are not found.
func (s *EventService) Get(ctx context.Context, id string) (*model.Event, error) {
	ev, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.Status != model.EventStatusPublished {
		return nil, ErrNotFound
	}
	return ev, nil
}

func (s *EventService) ListPublished(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	events, err := s.events.ListPublished(ctx, f)
	if err != nil {
		s.logger.Error("events: list published failed", "error", err)
		return nil, ErrStorage
	}
	return events, nil
}

func (s *EventService) ListByOrganizer(ctx context.Context, organizerID string) ([]model.Event, error) {
	events, err := s.events.ListByOrganizer(ctx, organizerID)
	if err != nil {
		s.logger.Error("events: list by organizer failed", "error", err, "organizer_id", organizerID)
		return nil, ErrStorage
	}
	return events, nil
}

// Create persists a new event owned by organizerID.
func (s *EventService) Create(ctx context.Context, organizerID string, in model.EventInput) (*model.Event, error) {
	ev := in.ToEvent(organizerID)
	if err := s.events.Create(ctx, ev); err != nil {
		return nil, s.translate(err, "create", ev.ID)
	}
	s.logger.Info("event created", "event_id", ev.ID, "organizer_id", organizerID)
	return ev, nil
}

// Update applies patch to an event the caller may manage.
func (s *EventService) Update(ctx context.Context, id, callerID, role string, patch model.EventPatch) (*model.Event, error) {
	ev, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(ev, callerID, role) {
		return nil, ErrForbidden
	}
	updated, err := s.events.Update(ctx, id, patch)
	if err != nil {
		return nil, s.translate(err, "update", id)
	}
	return updated, nil
}

// Delete removes an event and its registrations.  Deleting an event that no
// longer exists reports ErrNotFound.
func (s *EventService) Delete(ctx context.Context, id, callerID, role string) error {
	ev, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(ev, callerID, role) {
		return ErrForbidden
	}
	deleted, err := s.events.Delete(ctx, id)
	if err != nil {
		return s.translate(err, "delete", id)
	}
	if !deleted {
		return ErrNotFound
	}
	s.logger.Info("event deleted", "event_id", id, "by", callerID)
	return nil
}

func (s *EventService) load(ctx context.Context, id string) (*model.Event, error) {
	ev, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "load", id)
	}
	return ev, nil
}

func (s *EventService) translate(err error, op, id string) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr
	case errors.Is(err, repository.ErrEventNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		// Registrations arrived while capacity was being lowered.
		return &model.ValidationError{Fields: []model.FieldError{{Field: "capacity", Rule: "gte_registered_count"}}}
	default:
		s.logger.Error("events: "+op+" failed", "error", err, "event_id", id)
		return ErrStorage
	}
}

// canManage reports whether the caller may modify ev.
func canManage(ev *model.Event, callerID, role string) bool {
	return role == model.RoleSuperAdmin || ev.OrganizerID == callerID
}
