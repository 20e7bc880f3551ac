package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campusevents/ticketing/internal/metrics"
	"github.com/campusevents/ticketing/internal/model"
	"github.com/campusevents/ticketing/internal/queue"
	"github.com/campusevents/ticketing/internal/repository"
)

// maxTicketAttempts bounds retries after a ticket id collision.
const maxTicketAttempts = 5

// publishTimeout bounds the post-commit confirmation publish.
const publishTimeout = 5 * time.Second

var errNoCapacity = errors.New("no capacity left")

// Publisher delivers registration confirmations to the message broker.
type Publisher interface {
	PublishRegistrationConfirmed(ctx context.Context, event queue.RegistrationConfirmedEvent) error
}

// RegistrationService accepts or rejects registration attempts.  The
// registration insert and the event's conditional count increment commit
// together or not at all.
type RegistrationService struct {
	events    *repository.EventRepo
	regs      *repository.RegistrationRepo
	publisher Publisher
	logger    *slog.Logger

	// Now, NewTicketID and NewID are replaceable for tests.
	Now         func() time.Time
	NewTicketID func() string
	NewID       func() string
}

// NewRegistrationService wires a RegistrationService.  publisher may be nil,
// in which case no confirmation messages are sent.
func NewRegistrationService(events *repository.EventRepo, regs *repository.RegistrationRepo, publisher Publisher, logger *slog.Logger) *RegistrationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationService{
		events:      events,
		regs:        regs,
		publisher:   publisher,
		logger:      logger,
		Now:         time.Now,
		NewTicketID: NewTicketID,
		NewID:       uuid.NewString,
	}
}

// Register records userID's registration for eventID.  Checks run in a fixed
// order: existence, registration window, duplicate, advisory capacity,
// contact validation.  The final capacity decision is made by the
// conditional increment inside the transaction, so the advisory check can
// only ever reject early, never admit past capacity.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID string, contact model.ContactFields) (reg *model.Registration, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveRegistration(outcomeOf(err), time.Since(start))
	}()

	ev, err := s.publishedEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	if now.Before(ev.RegistrationOpens) {
		return nil, ErrNotYetOpen
	}
	if now.After(ev.RegistrationCloses) {
		return nil, ErrClosed
	}

	exists, err := s.regs.ExistsForUser(ctx, eventID, userID)
	if err != nil {
		s.logger.Error("registration: duplicate check failed", "error", err, "event_id", eventID, "user_id", userID)
		return nil, ErrStorage
	}
	if exists {
		return nil, ErrAlreadyRegistered
	}
	// A holder of the last place is still told AlreadyRegistered above.
	if !ev.HasCapacityFor() {
		return nil, ErrSoldOut
	}

	contact = contact.Normalize()
	if err := contact.Validate(); err != nil {
		return nil, err
	}

	reg = &model.Registration{
		ID:            s.NewID(),
		EventID:       eventID,
		UserID:        userID,
		Name:          contact.Name,
		Email:         contact.Email,
		Phone:         contact.Phone,
		Branch:        contact.Branch,
		Year:          contact.Year,
		PaymentStatus: model.PaymentStatusFor(ev),
		RegisteredAt:  now.Truncate(time.Second),
	}

	for attempt := 1; ; attempt++ {
		reg.TicketID = s.NewTicketID()
		err = s.commit(ctx, reg)
		if errors.Is(err, repository.ErrTicketTaken) && attempt < maxTicketAttempts {
			s.logger.Warn("registration: ticket id collision, retrying", "ticket_id", reg.TicketID, "attempt", attempt)
			continue
		}
		break
	}

	switch {
	case err == nil:
	case errors.Is(err, errNoCapacity):
		// The event may have been deleted since it was loaded.
		if _, gerr := s.events.GetByID(ctx, eventID); errors.Is(gerr, repository.ErrEventNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrSoldOut
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrAlreadyRegistered
	default:
		s.logger.Error("registration: commit failed", "error", err, "event_id", eventID, "user_id", userID)
		return nil, ErrStorage
	}

	s.logger.Info("registration confirmed", "event_id", eventID, "user_id", userID, "ticket_id", reg.TicketID)
	s.publish(ctx, ev, reg)
	return reg, nil
}

// commit runs the conditional increment and the insert in one transaction.
// The increment goes first so that its row lock on the event serializes
// concurrent registrations before any registration row is written.
func (s *RegistrationService) commit(ctx context.Context, reg *model.Registration) error {
	tx, err := s.events.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	applied, err := s.events.IncrementRegisteredCountTx(ctx, tx, reg.EventID)
	if err != nil {
		return err
	}
	if !applied {
		return errNoCapacity
	}
	if err := s.regs.CreateTx(ctx, tx, reg); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// publish sends the confirmation after commit.  Failures are logged and
// counted; the registration stands regardless.
func (s *RegistrationService) publish(ctx context.Context, ev *model.Event, reg *model.Registration) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	msg := queue.RegistrationConfirmedEvent{
		RegistrationID: reg.ID,
		TicketID:       reg.TicketID,
		EventID:        ev.ID,
		EventTitle:     ev.Title,
		Venue:          ev.Venue,
		EventStarts:    ev.EventStarts.Format(time.RFC3339),
		UserID:         reg.UserID,
		Name:           reg.Name,
		Email:          reg.Email,
		PaymentStatus:  string(reg.PaymentStatus),
		Price:          ev.Price.StringFixed(2),
		RegisteredAt:   reg.RegisteredAt.Format(time.RFC3339),
	}
	if err := s.publisher.PublishRegistrationConfirmed(ctx, msg); err != nil {
		metrics.PublishFailed()
		s.logger.Warn("registration: publish confirmation failed", "error", err, "ticket_id", reg.TicketID)
	}
}

// publishedEvent loads an event visible to registrants.  Drafts are
// reported as not found.
func (s *RegistrationService) publishedEvent(ctx context.Context, eventID string) (*model.Event, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error("registration: load event failed", "error", err, "event_id", eventID)
		return nil, ErrStorage
	}
	if ev.Status != model.EventStatusPublished {
		return nil, ErrNotFound
	}
	return ev, nil
}

// GetForUser returns userID's registration for eventID, or nil when the
// user has not registered.
func (s *RegistrationService) GetForUser(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg, err := s.regs.GetByEventAndUser(ctx, eventID, userID)
	if errors.Is(err, repository.ErrRegistrationNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("registration: lookup failed", "error", err, "event_id", eventID, "user_id", userID)
		return nil, ErrStorage
	}
	return reg, nil
}

// ListForUser returns the user's tickets with their events, newest first.
func (s *RegistrationService) ListForUser(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error) {
	items, err := s.regs.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("registration: list for user failed", "error", err, "user_id", userID)
		return nil, ErrStorage
	}
	return items, nil
}

// ListForEvent returns an event's registrations to the organizer that owns
// it (or a super admin).
func (s *RegistrationService) ListForEvent(ctx context.Context, eventID, callerID, role string) ([]model.Registration, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error("registration: load event failed", "error", err, "event_id", eventID)
		return nil, ErrStorage
	}
	if !canManage(ev, callerID, role) {
		return nil, ErrForbidden
	}
	regs, err := s.regs.ListByEvent(ctx, eventID)
	if err != nil {
		s.logger.Error("registration: list for event failed", "error", err, "event_id", eventID)
		return nil, ErrStorage
	}
	return regs, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrNotYetOpen):
		return metrics.OutcomeNotYetOpen
	case errors.Is(err, ErrClosed):
		return metrics.OutcomeClosed
	case errors.Is(err, ErrSoldOut):
		return metrics.OutcomeSoldOut
	case errors.Is(err, ErrAlreadyRegistered):
		return metrics.OutcomeAlreadyRegistered
	case errors.Is(err, ErrInvalidInput):
		return metrics.OutcomeInvalidInput
	default:
		return metrics.OutcomeStorageError
	}
}
