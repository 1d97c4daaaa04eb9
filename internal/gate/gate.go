package gate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	authservice "caresight/backend/internal/auth/service"
	entdomain "caresight/backend/internal/entitlement/domain"
	entservice "caresight/backend/internal/entitlement/service"
	"caresight/backend/internal/metrics"
)

// Validator is the minimal session validation needed by the gate.
type Validator interface {
	ValidateAccess(ctx context.Context, token string) (*authservice.Identity, error)
}

// Resolver is the minimal entitlement resolution needed by the gate.
type Resolver interface {
	ResolvePlan(ctx context.Context, tenantID string) (*entdomain.SubscriptionPlan, error)
	ResolveUsage(ctx context.Context, tenantID string) (*entdomain.UsageSnapshot, error)
}

// Evaluator computes the entitlement verdict for a non-zero requirement.
// usage may be nil when the operation and plan put no count in play.
type Evaluator interface {
	Evaluate(ctx context.Context, req OperationRequirement, plan *entdomain.SubscriptionPlan, usage *entdomain.UsageSnapshot) (allowed bool, reason string, err error)
}

// Gate authorizes operations. Session validity is checked first, then the
// operation's requirement against the tenant's plan and live usage. Every
// failure path denies; the gate never errors open.
type Gate struct {
	validator    Validator
	requirements *Registry
	resolver     Resolver
	evaluator    Evaluator
	log          zerolog.Logger
	nowF         func() time.Time
}

// New returns a Gate with the given dependencies.
func New(validator Validator, requirements *Registry, resolver Resolver, evaluator Evaluator, log zerolog.Logger) *Gate {
	return &Gate{
		validator:    validator,
		requirements: requirements,
		resolver:     resolver,
		evaluator:    evaluator,
		log:          log,
		nowF:         func() time.Time { return time.Now().UTC() },
	}
}

// Authorize validates the bearer token and checks the operation's requirement
// against the caller tenant's entitlement state. The identity is non-nil
// whenever the token resolved to a live session, even when the decision denies.
func (g *Gate) Authorize(ctx context.Context, token, operationKey string) (Decision, *authservice.Identity) {
	now := g.nowF()

	ident, err := g.validator.ValidateAccess(ctx, token)
	if err != nil {
		return g.record(operationKey, denied(credentialReason(err), now)), nil
	}

	req := g.requirements.Lookup(operationKey)
	if req.Zero() {
		return g.record(operationKey, allowed(ReasonUnrestricted, now)), ident
	}

	plan, err := g.resolver.ResolvePlan(ctx, ident.TenantID)
	if err != nil {
		if errors.Is(err, entservice.ErrNoActivePlan) {
			return g.record(operationKey, denied(ReasonNoActivePlan, now)), ident
		}
		g.log.Error().Err(err).Str("tenant_id", ident.TenantID).Msg("gate: plan resolution failed")
		return g.record(operationKey, denied(ReasonUsageUnavailable, now)), ident
	}

	var usage *entdomain.UsageSnapshot
	if usageInPlay(req, plan) {
		usage, err = g.resolver.ResolveUsage(ctx, ident.TenantID)
		if err != nil {
			return g.record(operationKey, denied(ReasonUsageUnavailable, now)), ident
		}
	}

	ok, reason, err := g.evaluator.Evaluate(ctx, req, plan, usage)
	if err != nil {
		g.log.Error().Err(err).Str("operation", operationKey).Msg("gate: policy evaluation failed")
		return g.record(operationKey, denied(ReasonUsageUnavailable, now)), ident
	}
	if !ok {
		return g.record(operationKey, denied(reason, now)), ident
	}
	return g.record(operationKey, allowed(reason, now)), ident
}

func (g *Gate) record(operationKey string, d Decision) Decision {
	metrics.AuthorizationDecisions.WithLabelValues(d.Reason).Inc()
	if !d.Allowed {
		g.log.Debug().Str("operation", operationKey).Str("reason", d.Reason).Msg("gate: denied")
	}
	return d
}

// usageInPlay reports whether live counts can affect the verdict: only when a
// plan cap is set does a quota overage exist to detect.
func usageInPlay(req OperationRequirement, plan *entdomain.SubscriptionPlan) bool {
	return plan.MaxCameras > 0 || plan.MaxSites > 0
}

func credentialReason(err error) string {
	switch {
	case errors.Is(err, authservice.ErrTokenExpired):
		return ReasonTokenExpired
	case errors.Is(err, authservice.ErrSessionRevoked):
		return ReasonSessionRevoked
	default:
		return ReasonTokenInvalid
	}
}
