package engine

import (
	"context"
	"testing"

	entdomain "caresight/backend/internal/entitlement/domain"
	"caresight/backend/internal/gate"
)

func newEvaluator(t *testing.T) *OPAEvaluator {
	t.Helper()
	e, err := NewOPAEvaluator()
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func TestHealthCheck(t *testing.T) {
	if err := newEvaluator(t).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestEvaluate(t *testing.T) {
	e := newEvaluator(t)
	ctx := context.Background()

	licensedPlan := &entdomain.SubscriptionPlan{
		PlanCode: "pro", LicenseActive: true, MaxCameras: 10, MaxSites: 3,
	}
	req := gate.OperationRequirement{
		OperationKey: "cameras.live_view", RequireLicense: true, MinCameras: 1,
	}

	cases := []struct {
		name       string
		req        gate.OperationRequirement
		plan       *entdomain.SubscriptionPlan
		usage      *entdomain.UsageSnapshot
		wantAllow  bool
		wantReason string
	}{
		{
			name: "allowed within plan",
			req:  req, plan: licensedPlan,
			usage:     &entdomain.UsageSnapshot{CameraCount: 4, SiteCount: 1},
			wantAllow: true, wantReason: "ok",
		},
		{
			name: "license inactive wins over everything",
			req:  req,
			plan: &entdomain.SubscriptionPlan{PlanCode: "pro", LicenseActive: false, MaxCameras: 0, MaxSites: 0},
			// Tier is also short here; license_inactive must be reported first.
			usage:     &entdomain.UsageSnapshot{CameraCount: 99},
			wantAllow: false, wantReason: gate.ReasonLicenseInactive,
		},
		{
			name: "plan caps below operation minimums",
			req:  gate.OperationRequirement{OperationKey: "cameras.bulk_export", MinCameras: 20},
			plan: licensedPlan,
			usage:     &entdomain.UsageSnapshot{CameraCount: 4},
			wantAllow: false, wantReason: gate.ReasonPlanBelowRequirement,
		},
		{
			name: "usage above plan caps",
			req:  req, plan: licensedPlan,
			usage:     &entdomain.UsageSnapshot{CameraCount: 12, SiteCount: 1},
			wantAllow: false, wantReason: gate.ReasonQuotaExceeded,
		},
		{
			name: "site overage alone trips quota",
			req:  req, plan: licensedPlan,
			usage:     &entdomain.UsageSnapshot{CameraCount: 1, SiteCount: 4},
			wantAllow: false, wantReason: gate.ReasonQuotaExceeded,
		},
		{
			name: "tier shortfall reported before quota overage",
			req:  gate.OperationRequirement{OperationKey: "cameras.bulk_export", MinCameras: 20},
			plan: licensedPlan,
			usage:     &entdomain.UsageSnapshot{CameraCount: 12},
			wantAllow: false, wantReason: gate.ReasonPlanBelowRequirement,
		},
		{
			name: "license-only requirement with no caps needs no usage",
			req:  gate.OperationRequirement{OperationKey: "tickets.create", RequireLicense: true},
			plan: &entdomain.SubscriptionPlan{PlanCode: "basic", LicenseActive: true},
			usage:     nil,
			wantAllow: true, wantReason: "ok",
		},
		{
			name: "usage exactly at cap is allowed",
			req:  req, plan: licensedPlan,
			usage:     &entdomain.UsageSnapshot{CameraCount: 10, SiteCount: 3},
			wantAllow: true, wantReason: "ok",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			allow, reason, err := e.Evaluate(ctx, tc.req, tc.plan, tc.usage)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if allow != tc.wantAllow || reason != tc.wantReason {
				t.Errorf("got (%v, %q), want (%v, %q)", allow, reason, tc.wantAllow, tc.wantReason)
			}
		})
	}
}
