// Package domain defines the audit event emitted for auth activity and
// authorization decisions.
package domain

import "time"

// Event types.
const (
	EventOTPRequested  = "otp_requested"
	EventOTPVerified   = "otp_verified"
	EventLogin         = "login"
	EventTokenRefresh  = "token_refresh"
	EventLogout        = "logout"
	EventSessionRevoke = "session_revoke"
	EventDecision      = "authorization_decision"
	EventPlanChange    = "plan_change"
)

// Event is one audit record. Serialized as JSON onto the Kafka topic; the
// worker ships it to Loki. Never carries codes, tokens, or full phone numbers.
type Event struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	EventType    string    `json:"event_type"`
	OperationKey string    `json:"operation_key,omitempty"`
	Allowed      *bool     `json:"allowed,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
