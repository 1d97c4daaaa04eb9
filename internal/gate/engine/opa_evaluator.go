package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	entdomain "caresight/backend/internal/entitlement/domain"
	"caresight/backend/internal/gate"
)

const policyPackage = "caresight.entitlement"

// Entitlement policy. License is checked first, then whether the plan's caps
// reach the operation minimums, then whether live usage stays within the caps.
const entitlementRegoPolicy = `package caresight.entitlement

default license_blocked = false

license_blocked if {
	input.requirement.require_license
	not input.plan.license_active
}

default plan_below = false

plan_below if {
	input.plan.max_cameras < input.requirement.min_cameras
}

plan_below if {
	input.plan.max_sites < input.requirement.min_sites
}

default quota_exceeded = false

quota_exceeded if {
	input.usage.known
	input.plan.max_cameras > 0
	input.usage.camera_count > input.plan.max_cameras
}

quota_exceeded if {
	input.usage.known
	input.plan.max_sites > 0
	input.usage.site_count > input.plan.max_sites
}

default allow = false

allow if {
	not license_blocked
	not plan_below
	not quota_exceeded
}

default reason = "ok"

reason = "license_inactive" if {
	license_blocked
}

reason = "plan_below_requirement" if {
	not license_blocked
	plan_below
}

reason = "quota_exceeded" if {
	not license_blocked
	not plan_below
	quota_exceeded
}
`

// OPAEvaluator computes entitlement verdicts with an in-process OPA Rego policy.
type OPAEvaluator struct {
	compiler *ast.Compiler
}

// NewOPAEvaluator compiles the entitlement policy and returns the evaluator.
func NewOPAEvaluator() (*OPAEvaluator, error) {
	compiler, err := ast.CompileModules(map[string]string{"entitlement.rego": entitlementRegoPolicy})
	if err != nil {
		return nil, fmt.Errorf("compile entitlement policy: %w", err)
	}
	return &OPAEvaluator{compiler: compiler}, nil
}

// HealthCheck evaluates the policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, _, err := e.Evaluate(ctx, gate.OperationRequirement{RequireLicense: true}, &entdomain.SubscriptionPlan{LicenseActive: true}, nil)
	return err
}

// Evaluate runs the entitlement policy for the requirement, plan, and usage.
// usage may be nil when no plan cap is in play.
func (e *OPAEvaluator) Evaluate(
	ctx context.Context,
	req gate.OperationRequirement,
	plan *entdomain.SubscriptionPlan,
	usage *entdomain.UsageSnapshot,
) (bool, string, error) {
	input := e.buildInput(req, plan, usage)

	allow, err := e.queryBool(ctx, "allow", input)
	if err != nil {
		return false, "", err
	}
	reason, err := e.queryString(ctx, "reason", input)
	if err != nil {
		return false, "", err
	}
	return allow, reason, nil
}

func (e *OPAEvaluator) buildInput(req gate.OperationRequirement, plan *entdomain.SubscriptionPlan, usage *entdomain.UsageSnapshot) map[string]interface{} {
	usageMap := map[string]interface{}{
		"known":        false,
		"camera_count": 0,
		"site_count":   0,
	}
	if usage != nil {
		usageMap["known"] = true
		usageMap["camera_count"] = usage.CameraCount
		usageMap["site_count"] = usage.SiteCount
	}
	return map[string]interface{}{
		"requirement": map[string]interface{}{
			"operation_key":   req.OperationKey,
			"require_license": req.RequireLicense,
			"min_cameras":     req.MinCameras,
			"min_sites":       req.MinSites,
		},
		"plan": map[string]interface{}{
			"plan_code":      plan.PlanCode,
			"license_active": plan.LicenseActive,
			"max_cameras":    plan.MaxCameras,
			"max_sites":      plan.MaxSites,
		},
		"usage": usageMap,
	}
}

func (e *OPAEvaluator) queryBool(ctx context.Context, rule string, input map[string]interface{}) (bool, error) {
	v, err := e.query(ctx, rule, input)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("policy rule %s: expected bool, got %T", rule, v)
	}
	return b, nil
}

func (e *OPAEvaluator) queryString(ctx context.Context, rule string, input map[string]interface{}) (string, error) {
	v, err := e.query(ctx, rule, input)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("policy rule %s: expected string, got %T", rule, v)
	}
	return s, nil
}

func (e *OPAEvaluator) query(ctx context.Context, rule string, input map[string]interface{}) (interface{}, error) {
	q := rego.New(
		rego.Query(fmt.Sprintf("data.%s.%s", policyPackage, rule)),
		rego.Compiler(e.compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("eval %s: %w", rule, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, fmt.Errorf("policy rule %s returned no result", rule)
	}
	return rs[0].Expressions[0].Value, nil
}
