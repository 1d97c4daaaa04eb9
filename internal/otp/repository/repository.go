package repository

import (
	"context"
	"time"

	"caresight/backend/internal/otp/domain"
)

// Repository defines persistence for OTP challenges. One row per phone identity.
type Repository interface {
	// GetByPhone returns the challenge for phone, or nil if none exists.
	GetByPhone(ctx context.Context, phone string) (*domain.Challenge, error)
	// Replace stores the challenge, overwriting any prior challenge for the same phone.
	Replace(ctx context.Context, c *domain.Challenge) error
	// DecrementAttempts atomically decrements the attempt budget for the challenge,
	// never below zero, and returns the remaining count.
	DecrementAttempts(ctx context.Context, id string) (int, error)
	// MarkConsumed records the successful verification time on the challenge.
	MarkConsumed(ctx context.Context, id string, at time.Time) error
	// DeleteByPhone removes the challenge for phone, if any.
	DeleteByPhone(ctx context.Context, phone string) error
}
