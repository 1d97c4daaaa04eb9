package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"caresight/backend/internal/entitlement/domain"
)

type memPlanStore struct {
	mu    sync.Mutex
	plans map[string]*domain.SubscriptionPlan
	err   error
	calls int
}

func (s *memPlanStore) GetActiveByTenant(ctx context.Context, tenantID string) (*domain.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.plans[tenantID], nil
}

type memCounter struct {
	mu    sync.Mutex
	usage map[string]*domain.UsageSnapshot
	err   error
	calls int
}

func (c *memCounter) CountUsage(ctx context.Context, tenantID string) (*domain.UsageSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	u := *c.usage[tenantID]
	u.AsOf = time.Now().UTC()
	return &u, nil
}

const resolverTenant = "tenant-1"

func newTestResolver() (*Resolver, *memPlanStore, *memCounter) {
	plans := &memPlanStore{plans: map[string]*domain.SubscriptionPlan{
		resolverTenant: {
			ID: "plan-1", TenantID: resolverTenant, PlanCode: "pro",
			LicenseActive: true, MaxCameras: 10, MaxSites: 3,
			ActivatedAt: time.Now().UTC(),
		},
	}}
	counter := &memCounter{usage: map[string]*domain.UsageSnapshot{
		resolverTenant: {TenantID: resolverTenant, CameraCount: 4, SiteCount: 1},
	}}
	r := NewResolver(plans, counter, time.Minute, 5*time.Minute, zerolog.Nop())
	return r, plans, counter
}

func TestResolvePlan_CachesWithinTTL(t *testing.T) {
	r, plans, _ := newTestResolver()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := r.ResolvePlan(ctx, resolverTenant)
		if err != nil {
			t.Fatalf("ResolvePlan: %v", err)
		}
		if p.PlanCode != "pro" {
			t.Errorf("plan = %q", p.PlanCode)
		}
	}
	if plans.calls != 1 {
		t.Errorf("plan store calls = %d, want 1", plans.calls)
	}
}

func TestResolvePlan_NoActivePlan(t *testing.T) {
	r, _, _ := newTestResolver()
	if _, err := r.ResolvePlan(context.Background(), "tenant-without-plan"); !errors.Is(err, ErrNoActivePlan) {
		t.Fatalf("want ErrNoActivePlan, got %v", err)
	}
}

func TestResolvePlan_ServesCachedOnStoreError(t *testing.T) {
	r, plans, _ := newTestResolver()
	ctx := context.Background()

	if _, err := r.ResolvePlan(ctx, resolverTenant); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	plans.mu.Lock()
	plans.err = errors.New("db down")
	plans.mu.Unlock()

	// Past cacheTTL but within maxStaleness: the cached plan still serves.
	r.nowF = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	if _, err := r.ResolvePlan(ctx, resolverTenant); err != nil {
		t.Fatalf("within staleness bound: %v", err)
	}

	// Past maxStaleness the error surfaces.
	r.nowF = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }
	if _, err := r.ResolvePlan(ctx, resolverTenant); err == nil {
		t.Fatal("stale plan served past staleness bound")
	}
}

func TestResolveUsage_FailsClosedWhenCounterDown(t *testing.T) {
	r, _, counter := newTestResolver()
	counter.mu.Lock()
	counter.err = errors.New("db down")
	counter.mu.Unlock()

	if _, err := r.ResolveUsage(context.Background(), resolverTenant); !errors.Is(err, ErrUsageUnavailable) {
		t.Fatalf("want ErrUsageUnavailable, got %v", err)
	}
}

func TestResolveUsage_StaleSnapshotWithinBound(t *testing.T) {
	r, _, counter := newTestResolver()
	ctx := context.Background()

	if _, err := r.ResolveUsage(ctx, resolverTenant); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	counter.mu.Lock()
	counter.err = errors.New("db down")
	counter.mu.Unlock()

	r.nowF = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	u, err := r.ResolveUsage(ctx, resolverTenant)
	if err != nil {
		t.Fatalf("within staleness bound: %v", err)
	}
	if u.CameraCount != 4 {
		t.Errorf("camera count = %d", u.CameraCount)
	}

	r.nowF = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }
	if _, err := r.ResolveUsage(ctx, resolverTenant); !errors.Is(err, ErrUsageUnavailable) {
		t.Fatalf("past staleness bound: want ErrUsageUnavailable, got %v", err)
	}
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	r, plans, _ := newTestResolver()
	ctx := context.Background()

	if _, err := r.ResolvePlan(ctx, resolverTenant); err != nil {
		t.Fatal(err)
	}
	plans.mu.Lock()
	plans.plans[resolverTenant] = &domain.SubscriptionPlan{
		ID: "plan-2", TenantID: resolverTenant, PlanCode: "enterprise",
		LicenseActive: true, MaxCameras: 100, MaxSites: 20,
		ActivatedAt: time.Now().UTC(),
	}
	plans.mu.Unlock()

	// Still cached.
	p, _ := r.ResolvePlan(ctx, resolverTenant)
	if p.PlanCode != "pro" {
		t.Fatalf("cache bypassed: %q", p.PlanCode)
	}

	r.Invalidate(resolverTenant)
	p, err := r.ResolvePlan(ctx, resolverTenant)
	if err != nil {
		t.Fatal(err)
	}
	if p.PlanCode != "enterprise" {
		t.Errorf("plan after invalidate = %q, want enterprise", p.PlanCode)
	}
}
