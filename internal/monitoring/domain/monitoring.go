// Package domain holds the monitoring resources entitlements are counted
// against: sites and the cameras installed at them.
package domain

import "time"

// Site is a physical location under monitoring.
type Site struct {
	ID        string
	TenantID  string
	Name      string
	CreatedAt time.Time
}

// Camera is a provisioned camera, optionally attached to a site.
type Camera struct {
	ID        string
	TenantID  string
	SiteID    string // empty when not yet assigned
	Name      string
	CreatedAt time.Time
}
