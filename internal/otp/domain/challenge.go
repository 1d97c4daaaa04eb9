package domain

import "time"

// Challenge represents a one-time-passcode challenge for a phone identity
// (stored in the otp_challenges table). At most one row exists per phone;
// reissuing replaces it.
type Challenge struct {
	ID                string
	Phone             string
	CodeHash          string
	AttemptsRemaining int
	ConsumedAt        *time.Time // nil until successfully verified
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// Active reports whether the challenge can still be verified at the given time.
func (c *Challenge) Active(now time.Time) bool {
	return c != nil && c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}
