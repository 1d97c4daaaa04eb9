package domain

import (
	"errors"
	"time"
)

// User is an admin user of the monitoring product. Users are provisioned out of
// band (seed or back office); the phone is the login identifier and must be
// unique across tenants.
type User struct {
	ID        string
	TenantID  string
	Phone     string
	Name      string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Phone == "" {
		return errors.New("phone is required")
	}
	if u.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
