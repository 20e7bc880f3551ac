package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/campusevents/ticketing/internal/database/databasetest"
	"github.com/campusevents/ticketing/internal/model"
	"github.com/campusevents/ticketing/internal/queue"
	"github.com/campusevents/ticketing/internal/repository"
)

// windowOpens is when every fixture event starts accepting registrations.
var windowOpens = time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db     *sql.DB
	users  *repository.UserRepo
	events *repository.EventRepo
	regs   *repository.RegistrationRepo
	pub    *fakePublisher
	svc    *RegistrationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := databasetest.Open(t)
	f := &fixture{
		db:     db,
		users:  repository.NewUserRepo(db),
		events: repository.NewEventRepo(db),
		regs:   repository.NewRegistrationRepo(db),
		pub:    &fakePublisher{},
	}
	f.svc = NewRegistrationService(f.events, f.regs, f.pub, nil)
	f.svc.Now = func() time.Time { return windowOpens.Add(24 * time.Hour) }
	return f
}

func (f *fixture) user(t *testing.T, role string) string {
	t.Helper()
	u, err := f.users.Create(context.Background(), uuid.NewString()+"@campus.test", "password123", "", "", role, 4)
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) event(t *testing.T, organizerID string, mutate func(*model.Event)) *model.Event {
	t.Helper()
	ev := &model.Event{
		OrganizerID:        organizerID,
		Title:              "Hack Night",
		Description:        "Build something overnight",
		Venue:              "Main Hall",
		EventType:          model.EventTypeCompetition,
		RegistrationOpens:  windowOpens,
		RegistrationCloses: windowOpens.Add(48 * time.Hour),
		EventStarts:        windowOpens.Add(72 * time.Hour),
		EventEnds:          windowOpens.Add(84 * time.Hour),
		Status:             model.EventStatusPublished,
	}
	if mutate != nil {
		mutate(ev)
	}
	require.NoError(t, f.events.Create(context.Background(), ev))
	return ev
}

func (f *fixture) registrationCount(t *testing.T, eventID string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM registrations WHERE event_id = ?`, eventID).Scan(&n))
	return n
}

func (f *fixture) registeredCount(t *testing.T, eventID string) int {
	t.Helper()
	ev, err := f.events.GetByID(context.Background(), eventID)
	require.NoError(t, err)
	return ev.RegisteredCount
}

func contact() model.ContactFields {
	return model.ContactFields{
		Name:   " Asha Rao ",
		Email:  "Asha@Campus.Test",
		Phone:  "9876543210",
		Branch: "CSE",
		Year:   "3",
	}
}

func capacity(n int) func(*model.Event) {
	return func(e *model.Event) { e.Capacity = &n }
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []queue.RegistrationConfirmedEvent
}

func (p *fakePublisher) PublishRegistrationConfirmed(_ context.Context, ev queue.RegistrationConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, ev)
	return p.err
}

func (p *fakePublisher) messages() []queue.RegistrationConfirmedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.RegistrationConfirmedEvent(nil), p.sent...)
}

func TestRegisterFreeEvent(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	student := f.user(t, model.RoleStudent)
	ev := f.event(t, org, nil)

	reg, err := f.svc.Register(context.Background(), ev.ID, student, contact())
	require.NoError(t, err)
	require.Equal(t, model.PaymentCompleted, reg.PaymentStatus)
	require.Regexp(t, `^TICKET-[0-9A-F]{8}$`, reg.TicketID)
	require.Equal(t, "Asha Rao", reg.Name)
	require.Equal(t, "asha@campus.test", reg.Email)

	require.Equal(t, 1, f.registeredCount(t, ev.ID))
	require.Equal(t, 1, f.registrationCount(t, ev.ID))

	stored, err := f.svc.GetForUser(context.Background(), ev.ID, student)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, reg.TicketID, stored.TicketID)

	msgs := f.pub.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, reg.TicketID, msgs[0].TicketID)
	require.Equal(t, "Hack Night", msgs[0].EventTitle)
	require.Equal(t, "0.00", msgs[0].Price)
}

func TestRegisterPaidEventIsPending(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	student := f.user(t, model.RoleStudent)
	ev := f.event(t, org, func(e *model.Event) {
		e.IsPaid = true
		e.Price = decimal.NewFromInt(150)
	})

	reg, err := f.svc.Register(context.Background(), ev.ID, student, contact())
	require.NoError(t, err)
	require.Equal(t, model.PaymentPending, reg.PaymentStatus)
	require.Equal(t, "150.00", f.pub.messages()[0].Price)
}

func TestRegisterRejections(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	student := f.user(t, model.RoleStudent)
	ctx := context.Background()

	t.Run("missing event", func(t *testing.T) {
		_, err := f.svc.Register(ctx, "missing", student, contact())
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("draft event", func(t *testing.T) {
		ev := f.event(t, org, func(e *model.Event) { e.Status = model.EventStatusDraft })
		_, err := f.svc.Register(ctx, ev.ID, student, contact())
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not yet open", func(t *testing.T) {
		ev := f.event(t, org, func(e *model.Event) {
			e.RegistrationOpens = windowOpens.Add(30 * time.Hour)
		})
		_, err := f.svc.Register(ctx, ev.ID, student, contact())
		require.ErrorIs(t, err, ErrNotYetOpen)
		require.Equal(t, 0, f.registeredCount(t, ev.ID))
	})

	t.Run("closed", func(t *testing.T) {
		ev := f.event(t, org, func(e *model.Event) {
			e.RegistrationCloses = windowOpens.Add(12 * time.Hour)
		})
		_, err := f.svc.Register(ctx, ev.ID, student, contact())
		require.ErrorIs(t, err, ErrClosed)
	})

	t.Run("invalid contact", func(t *testing.T) {
		ev := f.event(t, org, nil)
		bad := contact()
		bad.Email = "not-an-email"
		bad.Phone = "123"
		_, err := f.svc.Register(ctx, ev.ID, student, bad)
		require.ErrorIs(t, err, ErrInvalidInput)
		var verr *model.ValidationError
		require.True(t, errors.As(err, &verr))
		require.Len(t, verr.Fields, 2)
		require.Equal(t, 0, f.registrationCount(t, ev.ID))
	})

	t.Run("already registered", func(t *testing.T) {
		ev := f.event(t, org, nil)
		_, err := f.svc.Register(ctx, ev.ID, student, contact())
		require.NoError(t, err)
		_, err = f.svc.Register(ctx, ev.ID, student, contact())
		require.ErrorIs(t, err, ErrAlreadyRegistered)
		require.Equal(t, 1, f.registeredCount(t, ev.ID))
	})

	t.Run("sold out", func(t *testing.T) {
		ev := f.event(t, org, capacity(1))
		_, err := f.svc.Register(ctx, ev.ID, f.user(t, model.RoleStudent), contact())
		require.NoError(t, err)
		_, err = f.svc.Register(ctx, ev.ID, student, contact())
		require.ErrorIs(t, err, ErrSoldOut)
		require.Equal(t, 1, f.registeredCount(t, ev.ID))
	})
}

func TestRegisterWindowBoundariesAreInclusive(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	ev := f.event(t, org, nil)

	f.svc.Now = func() time.Time { return ev.RegistrationOpens }
	_, err := f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.NoError(t, err)

	f.svc.Now = func() time.Time { return ev.RegistrationCloses }
	_, err = f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.NoError(t, err)

	f.svc.Now = func() time.Time { return ev.RegistrationCloses.Add(time.Second) }
	_, err = f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.ErrorIs(t, err, ErrClosed)
}

func TestRegisterConcurrentNeverExceedsCapacity(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	ev := f.event(t, org, capacity(5))

	const attempts = 50
	students := make([]string, attempts)
	for i := range students {
		students[i] = f.user(t, model.RoleStudent)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		soldOut int
		other   []error
	)
	for _, id := range students {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), ev.ID, userID, contact())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrSoldOut):
				soldOut++
			default:
				other = append(other, err)
			}
		}(id)
	}
	wg.Wait()

	require.Empty(t, other)
	require.Equal(t, 5, success)
	require.Equal(t, attempts-5, soldOut)
	require.Equal(t, 5, f.registeredCount(t, ev.ID))
	require.Equal(t, 5, f.registrationCount(t, ev.ID))
	require.Len(t, f.pub.messages(), 5)
}

func TestRegisterLastSeatRace(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	ev := f.event(t, org, capacity(1))
	a, b := f.user(t, model.RoleStudent), f.user(t, model.RoleStudent)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []string{a, b} {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), ev.ID, userID, contact())
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var ok, sold int
	for err := range errs {
		if err == nil {
			ok++
		} else if errors.Is(err, ErrSoldOut) {
			sold++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, sold)
	require.Equal(t, 1, f.registeredCount(t, ev.ID))
}

func TestRegisterRetriesTicketCollision(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	ev := f.event(t, org, nil)

	f.svc.NewTicketID = func() string { return "TICKET-00000001" }
	_, err := f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.NoError(t, err)

	ids := []string{"TICKET-00000001", "TICKET-00000001", "TICKET-00000002"}
	calls := 0
	f.svc.NewTicketID = func() string {
		id := ids[calls]
		calls++
		return id
	}
	reg, err := f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.NoError(t, err)
	require.Equal(t, "TICKET-00000002", reg.TicketID)
	require.Equal(t, 3, calls)
	require.Equal(t, 2, f.registeredCount(t, ev.ID))
	require.Equal(t, 2, f.registrationCount(t, ev.ID))
}

func TestRegisterTicketCollisionGivesUp(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	ev := f.event(t, org, nil)
	f.svc.NewTicketID = func() string { return "TICKET-0000000F" }

	_, err := f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.NoError(t, err)
	_, err = f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.ErrorIs(t, err, ErrStorage)
	require.Equal(t, 1, f.registeredCount(t, ev.ID))
}

func TestRegisterFailedInsertLeavesCountUntouched(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	ev := f.event(t, org, capacity(3))

	_, err := f.db.Exec(`CREATE TRIGGER fail_registration BEFORE INSERT ON registrations
		BEGIN SELECT RAISE(ABORT, 'induced failure'); END`)
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.ErrorIs(t, err, ErrStorage)
	require.Equal(t, 0, f.registeredCount(t, ev.ID))
	require.Equal(t, 0, f.registrationCount(t, ev.ID))
	require.Empty(t, f.pub.messages())
}

func TestRegisterFailedIncrementWritesNothing(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	ev := f.event(t, org, nil)

	_, err := f.db.Exec(`CREATE TRIGGER fail_increment BEFORE UPDATE OF registered_count ON events
		BEGIN SELECT RAISE(ABORT, 'induced failure'); END`)
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.ErrorIs(t, err, ErrStorage)
	require.Equal(t, 0, f.registrationCount(t, ev.ID))
}

func TestRegisterPublishFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	org := f.user(t, model.RoleClubAdmin)
	ev := f.event(t, org, nil)

	reg, err := f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.NoError(t, err)
	require.NotEmpty(t, reg.TicketID)
	require.Equal(t, 1, f.registeredCount(t, ev.ID))
}

func TestRegisterWithoutPublisher(t *testing.T) {
	f := newFixture(t)
	svc := NewRegistrationService(f.events, f.regs, nil, nil)
	svc.Now = f.svc.Now
	ev := f.event(t, f.user(t, model.RoleClubAdmin), nil)

	_, err := svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.NoError(t, err)
}

func TestGetForUserWithoutRegistration(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, f.user(t, model.RoleClubAdmin), nil)

	reg, err := f.svc.GetForUser(context.Background(), ev.ID, f.user(t, model.RoleStudent))
	require.NoError(t, err)
	require.Nil(t, reg)
}

func TestListForEventOwnership(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, model.RoleClubAdmin)
	stranger := f.user(t, model.RoleClubAdmin)
	admin := f.user(t, model.RoleSuperAdmin)
	ev := f.event(t, owner, nil)
	_, err := f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.NoError(t, err)

	regs, err := f.svc.ListForEvent(context.Background(), ev.ID, owner, model.RoleClubAdmin)
	require.NoError(t, err)
	require.Len(t, regs, 1)

	_, err = f.svc.ListForEvent(context.Background(), ev.ID, stranger, model.RoleClubAdmin)
	require.ErrorIs(t, err, ErrForbidden)

	regs, err = f.svc.ListForEvent(context.Background(), ev.ID, admin, model.RoleSuperAdmin)
	require.NoError(t, err)
	require.Len(t, regs, 1)

	_, err = f.svc.ListForEvent(context.Background(), "missing", owner, model.RoleClubAdmin)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListForUser(t *testing.T) {
	f := newFixture(t)
	org := f.user(t, model.RoleClubAdmin)
	student := f.user(t, model.RoleStudent)
	first := f.event(t, org, nil)
	second := f.event(t, org, nil)
	for _, ev := range []*model.Event{first, second} {
		_, err := f.svc.Register(context.Background(), ev.ID, student, contact())
		require.NoError(t, err)
	}

	tickets, err := f.svc.ListForUser(context.Background(), student)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, item := range tickets {
		require.Equal(t, "Hack Night", item.Event.Title)
		require.Equal(t, item.EventID, item.Event.ID)
	}
}

func TestNewTicketID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewTicketID()
		require.Regexp(t, `^TICKET-[0-9A-F]{8}$`, id)
		seen[id] = true
	}
	require.Greater(t, len(seen), 90)
}

func TestOutcomeOf(t *testing.T) {
	require.Equal(t, "success", outcomeOf(nil))
	require.Equal(t, "sold_out", outcomeOf(ErrSoldOut))
	require.Equal(t, "invalid_input", outcomeOf(&model.ValidationError{}))
	require.Equal(t, "storage_error", outcomeOf(errors.New("boom")))
}

func TestRegisterDuplicateOnFullEvent(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, f.user(t, model.RoleClubAdmin), capacity(1))
	student := f.user(t, model.RoleStudent)

	_, err := f.svc.Register(context.Background(), ev.ID, student, contact())
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), ev.ID, student, contact())
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = f.svc.Register(context.Background(), ev.ID, f.user(t, model.RoleStudent), contact())
	require.ErrorIs(t, err, ErrSoldOut)
	require.Equal(t, 1, f.registeredCount(t, ev.ID))
}

func TestRegisterCancelledContextCommitsNothing(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, f.user(t, model.RoleClubAdmin), capacity(3))

	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.svc.Register(ctx, ev.ID, f.user(t, model.RoleStudent), contact())
		require.ErrorIs(t, err, ErrStorage)
	})

	t.Run("deadline already passed", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()
		_, err := f.svc.Register(ctx, ev.ID, f.user(t, model.RoleStudent), contact())
		require.ErrorIs(t, err, ErrStorage)
	})

	t.Run("cancelled after a rolled back attempt", func(t *testing.T) {
		_, err := f.db.Exec(`CREATE TRIGGER fail_first_insert BEFORE INSERT ON registrations
			WHEN NEW.ticket_id = 'TICKET-DEADBEEF'
			BEGIN SELECT RAISE(ABORT, 'UNIQUE constraint failed: registrations.ticket_id'); END`)
		require.NoError(t, err)
		t.Cleanup(func() { _, _ = f.db.Exec(`DROP TRIGGER fail_first_insert`) })

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		calls := 0
		f.svc.NewTicketID = func() string {
			calls++
			if calls == 1 {
				return "TICKET-DEADBEEF"
			}
			// The first transaction has rolled back; the retry starts on a
			// cancelled context.
			cancel()
			return "TICKET-CAFEF00D"
		}
		t.Cleanup(func() { f.svc.NewTicketID = NewTicketID })

		_, err = f.svc.Register(ctx, ev.ID, f.user(t, model.RoleStudent), contact())
		require.ErrorIs(t, err, ErrStorage)
		require.Equal(t, 2, calls)
	})

	require.Equal(t, 0, f.registeredCount(t, ev.ID))
	require.Equal(t, 0, f.registrationCount(t, ev.ID))
	require.Empty(t, f.pub.messages())
}
