package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"caresight/backend/internal/entitlement/domain"
)

// Sentinel errors for entitlement resolution; the gate maps them to reasons.
var (
	// ErrNoActivePlan is returned when the tenant has no current subscription plan.
	ErrNoActivePlan = errors.New("no active subscription plan")
	// ErrUsageUnavailable is returned when usage cannot be read and no snapshot
	// within the staleness bound exists. Resolution fails closed.
	ErrUsageUnavailable = errors.New("usage unavailable")
)

// PlanStore is the minimal plan repository needed by the resolver.
type PlanStore interface {
	GetActiveByTenant(ctx context.Context, tenantID string) (*domain.SubscriptionPlan, error)
}

// UsageCounter reads a tenant's current resource usage.
type UsageCounter interface {
	CountUsage(ctx context.Context, tenantID string) (*domain.UsageSnapshot, error)
}

type planEntry struct {
	plan      *domain.SubscriptionPlan // nil means a cached "no active plan"
	fetchedAt time.Time
}

type usageEntry struct {
	usage *domain.UsageSnapshot
}

// Resolver serves plans and usage snapshots with a per-tenant cache. Entries
// are refreshed after cacheTTL; a usage snapshot older than maxStaleness is
// never served, even when the counter is down.
type Resolver struct {
	plans   PlanStore
	counter UsageCounter

	mu         sync.RWMutex
	planCache  map[string]planEntry
	usageCache map[string]usageEntry

	cacheTTL     time.Duration
	maxStaleness time.Duration
	log          zerolog.Logger
	nowF         func() time.Time
}

// NewResolver returns a Resolver with the given stores and freshness bounds.
// cacheTTL must not exceed maxStaleness; config validation enforces that.
func NewResolver(plans PlanStore, counter UsageCounter, cacheTTL, maxStaleness time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		plans:        plans,
		counter:      counter,
		planCache:    make(map[string]planEntry),
		usageCache:   make(map[string]usageEntry),
		cacheTTL:     cacheTTL,
		maxStaleness: maxStaleness,
		log:          log,
		nowF:         func() time.Time { return time.Now().UTC() },
	}
}

// ResolvePlan returns the tenant's active plan, from cache when fresh.
// Returns ErrNoActivePlan when the tenant has none.
func (r *Resolver) ResolvePlan(ctx context.Context, tenantID string) (*domain.SubscriptionPlan, error) {
	now := r.nowF()

	r.mu.RLock()
	e, ok := r.planCache[tenantID]
	r.mu.RUnlock()
	if ok && now.Sub(e.fetchedAt) <= r.cacheTTL {
		if e.plan == nil {
			return nil, ErrNoActivePlan
		}
		return e.plan, nil
	}

	plan, err := r.plans.GetActiveByTenant(ctx, tenantID)
	if err != nil {
		// Serve the cached plan while it is still within the staleness bound.
		if ok && e.plan != nil && now.Sub(e.fetchedAt) <= r.maxStaleness {
			r.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("entitlement: plan store error, serving cached plan")
			return e.plan, nil
		}
		return nil, err
	}

	r.mu.Lock()
	r.planCache[tenantID] = planEntry{plan: plan, fetchedAt: now}
	r.mu.Unlock()

	if plan == nil {
		return nil, ErrNoActivePlan
	}
	return plan, nil
}

// ResolveUsage returns a usage snapshot for the tenant no older than the
// staleness bound. Counter failure with no usable snapshot → ErrUsageUnavailable.
func (r *Resolver) ResolveUsage(ctx context.Context, tenantID string) (*domain.UsageSnapshot, error) {
	now := r.nowF()

	r.mu.RLock()
	e, ok := r.usageCache[tenantID]
	r.mu.RUnlock()
	if ok && now.Sub(e.usage.AsOf) <= r.cacheTTL {
		return e.usage, nil
	}

	usage, err := r.counter.CountUsage(ctx, tenantID)
	if err != nil {
		if ok && e.usage.FreshAt(now, r.maxStaleness) {
			r.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("entitlement: usage counter error, serving stale snapshot")
			return e.usage, nil
		}
		r.log.Error().Err(err).Str("tenant_id", tenantID).Msg("entitlement: usage unavailable")
		return nil, ErrUsageUnavailable
	}

	r.mu.Lock()
	r.usageCache[tenantID] = usageEntry{usage: usage}
	r.mu.Unlock()
	return usage, nil
}

// Invalidate evicts the tenant's cached plan and usage. Called when billing
// activates a new plan so the next authorize sees it immediately.
func (r *Resolver) Invalidate(tenantID string) {
	r.mu.Lock()
	delete(r.planCache, tenantID)
	delete(r.usageCache, tenantID)
	r.mu.Unlock()
}
