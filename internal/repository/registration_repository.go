package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/campusevents/ticketing/internal/model"
)

// ErrRegistrationNotFound is returned when no registration matches a lookup.
var ErrRegistrationNotFound = errors.New("registration not found")

// ErrTicketTaken signals that a generated ticket id collided with an
// existing one.  Callers retry with a fresh id.
var ErrTicketTaken = errors.New("ticket id already taken")

const registrationColumns = `id, event_id, user_id, ticket_id, name, email, phone, branch, year,
payment_status, payment_id, registered_at`

// RegistrationRepo provides persistence for registrations.  Registrations
// are inserted once and never updated.
type RegistrationRepo struct {
	db *sql.DB
}

// NewRegistrationRepo constructs a RegistrationRepo.
func NewRegistrationRepo(db *sql.DB) *RegistrationRepo {
	return &RegistrationRepo{db: db}
}

// CreateTx inserts reg within tx.  A ticket id collision yields
// ErrTicketTaken; an existing (event, user) pair yields ErrDuplicate.
func (r *RegistrationRepo) CreateTx(ctx context.Context, tx *sql.Tx, reg *model.Registration) error {
	const q = `INSERT INTO registrations (` + registrationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		reg.ID, reg.EventID, reg.UserID, reg.TicketID, reg.Name, reg.Email, reg.Phone, reg.Branch, reg.Year,
		string(reg.PaymentStatus), nullable(reg.PaymentID), reg.RegisteredAt,
	)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err, "ticket_id") {
		return ErrTicketTaken
	}
	if isUniqueViolation(err, "") {
		return ErrDuplicate
	}
	return err
}

// GetByEventAndUser returns the user's registration for an event, or
// ErrRegistrationNotFound.
func (r *RegistrationRepo) GetByEventAndUser(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	const q = `SELECT ` + registrationColumns + ` FROM registrations WHERE event_id = ? AND user_id = ?`
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, q, eventID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}

// ExistsForUser reports whether userID already holds a registration for
// eventID.
func (r *RegistrationRepo) ExistsForUser(ctx context.Context, eventID, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM registrations WHERE event_id = ? AND user_id = ? LIMIT 1`, eventID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListByEvent returns every registration for an event, newest first.
func (r *RegistrationRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	const q = `SELECT ` + registrationColumns + ` FROM registrations WHERE event_id = ? ORDER BY registered_at DESC, id`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]model.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListByUser returns the user's registrations joined with their events,
// newest first.
func (r *RegistrationRepo) ListByUser(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error) {
	q := `SELECT ` + prefixed(registrationColumns, "r") + `, ` + prefixed(eventColumns, "e") + `
          FROM registrations r
          JOIN events e ON e.id = r.event_id
          WHERE r.user_id = ?
          ORDER BY r.registered_at DESC, r.id`
	return r.listWithEvent(ctx, q, userID)
}

// RecentForOrganizer returns the latest limit registrations across all of
// the organizer's events.
func (r *RegistrationRepo) RecentForOrganizer(ctx context.Context, organizerID string, limit int) ([]model.RegistrationWithEvent, error) {
	q := `SELECT ` + prefixed(registrationColumns, "r") + `, ` + prefixed(eventColumns, "e") + `
          FROM registrations r
          JOIN events e ON e.id = r.event_id
          WHERE e.organizer_id = ?
          ORDER BY r.registered_at DESC, r.id
          LIMIT ?`
	return r.listWithEvent(ctx, q, organizerID, limit)
}

func (r *RegistrationRepo) listWithEvent(ctx context.Context, q string, args ...any) ([]model.RegistrationWithEvent, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]model.RegistrationWithEvent, 0)
	for rows.Next() {
		item, err := scanRegistrationWithEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func registrationDest(reg *model.Registration, status *string, paymentID *sql.NullString) []any {
	return []any{
		&reg.ID, &reg.EventID, &reg.UserID, &reg.TicketID, &reg.Name, &reg.Email, &reg.Phone, &reg.Branch, &reg.Year,
		status, paymentID, &reg.RegisteredAt,
	}
}

func finishRegistration(reg *model.Registration, status string, paymentID sql.NullString) {
	reg.PaymentStatus = model.PaymentStatus(status)
	reg.PaymentID = nullString(paymentID)
	reg.RegisteredAt = reg.RegisteredAt.UTC()
}

func scanRegistration(s rowScanner) (*model.Registration, error) {
	var (
		reg       model.Registration
		status    string
		paymentID sql.NullString
	)
	if err := s.Scan(registrationDest(&reg, &status, &paymentID)...); err != nil {
		return nil, err
	}
	finishRegistration(&reg, status, paymentID)
	return &reg, nil
}

// scanRegistrationWithEvent reads a row laid out as registration columns
// followed by event columns.
func scanRegistrationWithEvent(rows *sql.Rows) (*model.RegistrationWithEvent, error) {
	var (
		item      model.RegistrationWithEvent
		status    string
		paymentID sql.NullString
	)
	regDest := registrationDest(&item.Registration, &status, &paymentID)
	var evDest []any
	ev, err := scanEvent(scanFunc(func(dest ...any) error {
		evDest = dest
		return rows.Scan(append(regDest, evDest...)...)
	}))
	if err != nil {
		return nil, err
	}
	finishRegistration(&item.Registration, status, paymentID)
	item.Event = *ev
	return &item, nil
}

// scanFunc adapts a function to rowScanner.
type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// prefixed qualifies each column in a comma separated list with alias.
func prefixed(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
