package repository

import (
	"context"

	"caresight/backend/internal/entitlement/domain"
)

// Repository defines persistence for subscription plans.
type Repository interface {
	// GetActiveByTenant returns the tenant's current plan, or nil when the
	// tenant has no active plan.
	GetActiveByTenant(ctx context.Context, tenantID string) (*domain.SubscriptionPlan, error)
	// Activate supersedes the tenant's current plan (if any) and inserts the
	// new one in a single transaction.
	Activate(ctx context.Context, p *domain.SubscriptionPlan) error
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.SubscriptionPlan, error)
}

// UsageCounter reads a tenant's current resource usage.
type UsageCounter interface {
	CountUsage(ctx context.Context, tenantID string) (*domain.UsageSnapshot, error)
}
