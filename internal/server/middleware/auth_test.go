package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditpkg "caresight/backend/internal/audit"
	authservice "caresight/backend/internal/auth/service"
	entdomain "caresight/backend/internal/entitlement/domain"
	"caresight/backend/internal/gate"
)

type stubValidator struct {
	ident *authservice.Identity
	err   error
}

func (v *stubValidator) ValidateAccess(ctx context.Context, token string) (*authservice.Identity, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.ident, nil
}

type stubResolver struct {
	plan  *entdomain.SubscriptionPlan
	usage *entdomain.UsageSnapshot
}

func (r *stubResolver) ResolvePlan(ctx context.Context, tenantID string) (*entdomain.SubscriptionPlan, error) {
	return r.plan, nil
}

func (r *stubResolver) ResolveUsage(ctx context.Context, tenantID string) (*entdomain.UsageSnapshot, error) {
	return r.usage, nil
}

type stubEvaluator struct {
	allow  bool
	reason string
}

func (e *stubEvaluator) Evaluate(ctx context.Context, req gate.OperationRequirement, plan *entdomain.SubscriptionPlan, usage *entdomain.UsageSnapshot) (bool, string, error) {
	return e.allow, e.reason, nil
}

func testGate(v *stubValidator, allow bool, reason string) *gate.Gate {
	reg := gate.NewRegistry()
	reg.Register(gate.OperationRequirement{OperationKey: "cameras.list", RequireLicense: true})
	resolver := &stubResolver{
		plan:  &entdomain.SubscriptionPlan{PlanCode: "pro", LicenseActive: true, MaxCameras: 10},
		usage: &entdomain.UsageSnapshot{CameraCount: 2},
	}
	return gate.New(v, reg, resolver, &stubEvaluator{allow: allow, reason: reason}, zerolog.Nop())
}

func nopAudit() *auditpkg.Emitter {
	return auditpkg.NewEmitter(nil, zerolog.Nop())
}

func TestGated_AllowedSetsIdentity(t *testing.T) {
	ident := &authservice.Identity{UserID: "user-1", TenantID: "tenant-1", SessionID: "sess-1"}
	g := testGate(&stubValidator{ident: ident}, true, gate.ReasonOK)

	var gotTenant string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant, _ = GetTenantID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := Gated(g, "cameras.list", nopAudit())(next)

	req := httptest.NewRequest(http.MethodGet, "/v1/cameras", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant-1", gotTenant)
}

func TestGated_CredentialFailure401(t *testing.T) {
	g := testGate(&stubValidator{err: authservice.ErrTokenExpired}, true, gate.ReasonOK)
	h := Gated(g, "cameras.list", nopAudit())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler ran after denial")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/cameras", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, gate.ReasonTokenExpired, body["reason"])
}

func TestGated_EntitlementDenial403(t *testing.T) {
	ident := &authservice.Identity{UserID: "user-1", TenantID: "tenant-1", SessionID: "sess-1"}
	g := testGate(&stubValidator{ident: ident}, false, gate.ReasonQuotaExceeded)
	h := Gated(g, "cameras.list", nopAudit())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler ran after denial")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/cameras", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, gate.ReasonQuotaExceeded, body["reason"])
}

func TestExtractBearer(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"BEARER  abc ", "abc"},
		{"Basic abc", ""},
		{"", ""},
		{"Bearer", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		assert.Equal(t, tc.want, ExtractBearer(req), "header %q", tc.header)
	}
}

func TestSessionGuard_RedirectsWithoutSession(t *testing.T) {
	guard := SessionGuard(&stubValidator{err: authservice.ErrTokenInvalid}, "/login")
	h := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler ran without session")
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/cameras?site=1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fdashboard%2Fcameras%3Fsite%3D1", rec.Header().Get("Location"))
}

func TestSessionGuard_CookiePasses(t *testing.T) {
	ident := &authservice.Identity{UserID: "user-1", TenantID: "tenant-1", SessionID: "sess-1"}
	guard := SessionGuard(&stubValidator{ident: ident}, "/login")

	var gotUser string
	h := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUser)
}
