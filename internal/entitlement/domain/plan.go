package domain

import "time"

// SubscriptionPlan is a tenant's purchased plan. At most one plan per tenant is
// active (superseded_at NULL); activating a new plan supersedes the old one.
type SubscriptionPlan struct {
	ID            string
	TenantID      string
	PlanCode      string
	LicenseActive bool
	MaxCameras    int
	MaxSites      int
	ActivatedAt   time.Time
	SupersededAt  *time.Time // nil while the plan is the tenant's current plan
}

// Covers reports whether the plan's capacity meets the given minimums.
// A zero limit means the dimension is not included in the plan at all.
func (p *SubscriptionPlan) Covers(minCameras, minSites int) bool {
	return p.MaxCameras >= minCameras && p.MaxSites >= minSites
}

// UsageSnapshot is a point-in-time count of a tenant's provisioned resources.
type UsageSnapshot struct {
	TenantID    string
	CameraCount int
	SiteCount   int
	AsOf        time.Time
}

// FreshAt reports whether the snapshot is usable at now under the staleness bound.
func (u *UsageSnapshot) FreshAt(now time.Time, maxStaleness time.Duration) bool {
	return now.Sub(u.AsOf) <= maxStaleness
}
