// Package repository contains data access logic for the event store. This
// file defines the EventRepo, the only component allowed to write an
// event's registered_count.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusevents/ticketing/internal/model"
)

// ErrEventNotFound indicates that an event was not located in the DB.
var ErrEventNotFound = errors.New("event not found")

const eventColumns = `id, club_id, organizer_id, title, description, banner_url, venue, event_type,
registration_opens, registration_closes, event_starts, event_ends,
is_paid, price, capacity, registered_count, status, created_at, updated_at`

// EventRepo manages persistence for events.
type EventRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db, now: time.Now}
}

// DB exposes the underlying sql.DB.  It allows callers to begin
// transactions spanning multiple repositories.
func (r *EventRepo) DB() *sql.DB {
	return r.db
}

// GetByID retrieves an event by its ID.  It returns ErrEventNotFound if
// there is no matching row.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

// ListPublished returns published events, optionally narrowed by type and
// paid flag, newest start time first.
func (r *EventRepo) ListPublished(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	conds := []string{"status = ?"}
	args := []any{string(model.EventStatusPublished)}
	if f.EventType != nil {
		conds = append(conds, "event_type = ?")
		args = append(args, string(*f.EventType))
	}
	if f.IsPaid != nil {
		conds = append(conds, "is_paid = ?")
		args = append(args, *f.IsPaid)
	}
	q := `SELECT ` + eventColumns + ` FROM events WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY event_starts DESC`
	return r.list(ctx, q, args...)
}

// ListByOrganizer returns every event created by organizerID, most
// recently created first.  An organizer with no events gets an empty slice.
func (r *EventRepo) ListByOrganizer(ctx context.Context, organizerID string) ([]model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE organizer_id = ? ORDER BY created_at DESC`
	return r.list(ctx, q, organizerID)
}

func (r *EventRepo) list(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Create validates and inserts a new event.  The generated ID and
// timestamps are written back to e; registered_count always starts at 0.
// Invariant violations are returned as *model.ValidationError before any
// SQL runs.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	e.Normalize()
	e.RegisteredCount = 0
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := r.now().UTC().Truncate(time.Second)
	e.CreatedAt, e.UpdatedAt = now, now
	const q = `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, nullable(e.ClubID), e.OrganizerID, e.Title, e.Description, nullable(e.BannerURL), e.Venue, string(e.EventType),
		e.RegistrationOpens, e.RegistrationCloses, e.EventStarts, e.EventEnds,
		e.IsPaid, e.Price, nullableInt(e.Capacity), 0, string(e.Status), e.CreatedAt, e.UpdatedAt,
	)
	return err
}

// Update merges patch into the stored event, re-validates the result and
// persists every editable column.  registered_count is never written here.
// The UPDATE is guarded so that a concurrent registration cannot leave the
// count above a newly lowered capacity; in that case ErrConflict is
// returned.  A missing event yields ErrEventNotFound.
func (r *EventRepo) Update(ctx context.Context, id string, patch model.EventPatch) (*model.Event, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := patch.Apply(*current)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	merged.UpdatedAt = r.now().UTC().Truncate(time.Second)
	capacity := nullableInt(merged.Capacity)
	const q = `UPDATE events
               SET club_id = ?, title = ?, description = ?, banner_url = ?, venue = ?, event_type = ?,
                   registration_opens = ?, registration_closes = ?, event_starts = ?, event_ends = ?,
                   is_paid = ?, price = ?, capacity = ?, status = ?, updated_at = ?
               WHERE id = ? AND (? IS NULL OR registered_count <= ?)`
	res, err := r.db.ExecContext(ctx, q,
		nullable(merged.ClubID), merged.Title, merged.Description, nullable(merged.BannerURL), merged.Venue, string(merged.EventType),
		merged.RegistrationOpens, merged.RegistrationCloses, merged.EventStarts, merged.EventEnds,
		merged.IsPaid, merged.Price, capacity, string(merged.Status), merged.UpdatedAt,
		id, capacity, capacity,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return r.GetByID(ctx, id)
	}
	// Either the row vanished, the guard rejected the capacity, or (MySQL)
	// the values were identical.
	after, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if merged.Capacity != nil && after.RegisteredCount > *merged.Capacity {
		return nil, ErrConflict
	}
	return after, nil
}

// Delete removes an event and all of its registrations in one
// transaction.  It reports false when no event with that ID exists, which
// callers treat as "not found" rather than a failure.
func (r *EventRepo) Delete(ctx context.Context, id string) (deleted bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	// Ensure rollback or commit at the end
	defer func() {
		if err != nil || !deleted {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			deleted, err = false, cerr
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM registrations WHERE event_id = ?`, id); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrementRegisteredCountTx adds one to the event's registered_count inside
// tx, but only while the event has spare capacity.  The check and the write
// are a single statement so concurrent callers can never push the count
// past capacity.  It reports whether the increment applied.
func (r *EventRepo) IncrementRegisteredCountTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	const q = `UPDATE events
               SET registered_count = registered_count + 1
               WHERE id = ? AND (capacity IS NULL OR registered_count < capacity)`
	res, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (*model.Event, error) {
	var (
		ev                model.Event
		clubID, bannerURL sql.NullString
		capacity          sql.NullInt64
		eventType, status string
		price             decimal.Decimal
	)
	if err := s.Scan(
		&ev.ID, &clubID, &ev.OrganizerID, &ev.Title, &ev.Description, &bannerURL, &ev.Venue, &eventType,
		&ev.RegistrationOpens, &ev.RegistrationCloses, &ev.EventStarts, &ev.EventEnds,
		&ev.IsPaid, &price, &capacity, &ev.RegisteredCount, &status, &ev.CreatedAt, &ev.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ev.ClubID = nullString(clubID)
	ev.BannerURL = nullString(bannerURL)
	ev.EventType = model.EventType(eventType)
	ev.Status = model.EventStatus(status)
	ev.Price = price
	if capacity.Valid {
		c := int(capacity.Int64)
		ev.Capacity = &c
	}
	ev.RegistrationOpens = ev.RegistrationOpens.UTC()
	ev.RegistrationCloses = ev.RegistrationCloses.UTC()
	ev.EventStarts = ev.EventStarts.UTC()
	ev.EventEnds = ev.EventEnds.UTC()
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.UpdatedAt = ev.UpdatedAt.UTC()
	return &ev, nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}
