package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrRefreshTokenInvalid covers unknown, revoked and expired refresh tokens
// alike; callers answer all three with 401.
var ErrRefreshTokenInvalid = errors.New("refresh token invalid")

// TokenRepo stores refresh tokens by the SHA-256 hash of their raw value.
type TokenRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenRepo constructs a TokenRepo.
func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{db: db, now: time.Now}
}

// StoreRefresh records a newly issued refresh token for userID.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	const q = `INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, userID, tokenHash, expiresAt.UTC().Truncate(time.Second), r.stamp())
	return err
}

// ValidateRefresh returns the owner of a live token.  The revocation and
// expiry checks run in SQL so a single row answers the question.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	const q = `SELECT user_id FROM refresh_tokens
	           WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`
	var userID string
	err := r.db.QueryRowContext(ctx, q, tokenHash, r.stamp()).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRefreshTokenInvalid
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// RevokeByHash revokes one token.  Revoking an already revoked or unknown
// token is a no-op.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	return r.revoke(ctx, `token_hash = ?`, tokenHash)
}

// RevokeAllForUser revokes every live token of userID, logging the user out
// everywhere.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	return r.revoke(ctx, `user_id = ?`, userID)
}

func (r *TokenRepo) revoke(ctx context.Context, where string, arg any) error {
	q := `UPDATE refresh_tokens SET revoked_at = ? WHERE ` + where + ` AND revoked_at IS NULL`
	_, err := r.db.ExecContext(ctx, q, r.stamp(), arg)
	return err
}

func (r *TokenRepo) stamp() time.Time {
	return r.now().UTC().Truncate(time.Second)
}
