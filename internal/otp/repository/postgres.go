package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"caresight/backend/internal/otp/domain"
)

// PostgresRepository persists OTP challenges in the otp_challenges table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an OTP challenge repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByPhone returns the challenge for phone, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, phone, code_hash, attempts_remaining, consumed_at, expires_at, created_at
		FROM otp_challenges WHERE phone = $1`, phone)
	var c domain.Challenge
	var consumed sql.NullTime
	err := row.Scan(&c.ID, &c.Phone, &c.CodeHash, &c.AttemptsRemaining, &consumed, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if consumed.Valid {
		t := consumed.Time
		c.ConsumedAt = &t
	}
	return &c, nil
}

// Replace stores the challenge, overwriting any prior row for the same phone.
// The unique index on phone makes the upsert the single-live-challenge invariant.
func (r *PostgresRepository) Replace(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO otp_challenges (id, phone, code_hash, attempts_remaining, consumed_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6)
		ON CONFLICT (phone) DO UPDATE SET
			id = EXCLUDED.id,
			code_hash = EXCLUDED.code_hash,
			attempts_remaining = EXCLUDED.attempts_remaining,
			consumed_at = NULL,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at`,
		c.ID, c.Phone, c.CodeHash, c.AttemptsRemaining, c.ExpiresAt, c.CreatedAt)
	return err
}

// DecrementAttempts decrements the attempt budget, never below zero, and returns the remainder.
func (r *PostgresRepository) DecrementAttempts(ctx context.Context, id string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE otp_challenges
		SET attempts_remaining = GREATEST(attempts_remaining - 1, 0)
		WHERE id = $1
		RETURNING attempts_remaining`, id)
	var remaining int
	if err := row.Scan(&remaining); err != nil {
		return 0, err
	}
	return remaining, nil
}

// MarkConsumed records the successful verification time on the challenge.
func (r *PostgresRepository) MarkConsumed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE otp_challenges SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`, id, at)
	return err
}

// DeleteByPhone removes the challenge for phone, if any.
func (r *PostgresRepository) DeleteByPhone(ctx context.Context, phone string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE phone = $1`, phone)
	return err
}
