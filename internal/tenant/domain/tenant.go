package domain

import (
	"errors"
	"time"
)

// Tenant is a customer organization; every user, session, plan, and camera
// belongs to exactly one tenant.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Validate validates the tenant for persistence.
func (t *Tenant) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	return nil
}
