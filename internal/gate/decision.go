package gate

import "time"

// Reason codes carried on every decision. Machine-readable; clients branch on
// them (token_expired → try refresh, plan_below_requirement → upsell).
const (
	ReasonOK                   = "ok"
	ReasonUnrestricted         = "unrestricted"
	ReasonTokenExpired         = "token_expired"
	ReasonTokenInvalid         = "token_invalid"
	ReasonSessionRevoked       = "session_revoked"
	ReasonNoActivePlan         = "no_active_plan"
	ReasonUsageUnavailable     = "usage_unavailable"
	ReasonLicenseInactive      = "license_inactive"
	ReasonPlanBelowRequirement = "plan_below_requirement"
	ReasonQuotaExceeded        = "quota_exceeded"
)

// Decision is the outcome of authorizing one operation.
type Decision struct {
	Allowed     bool
	Reason      string
	EvaluatedAt time.Time
}

func allowed(reason string, at time.Time) Decision {
	return Decision{Allowed: true, Reason: reason, EvaluatedAt: at}
}

func denied(reason string, at time.Time) Decision {
	return Decision{Allowed: false, Reason: reason, EvaluatedAt: at}
}
