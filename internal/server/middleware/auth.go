// Package middleware contains the HTTP middleware stack: request logging,
// bearer authorization through the gate, and the browser session guard.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	auditpkg "caresight/backend/internal/audit"
	auditdomain "caresight/backend/internal/audit/domain"
	"caresight/backend/internal/gate"
)

const bearerPrefix = "bearer "

// Gated returns middleware that authorizes every request against the gate
// using the given operation key. Credential failures get 401, entitlement
// denials 403, both with a machine-readable reason. On allow, the caller
// identity is placed in the request context.
func Gated(g *gate.Gate, operationKey string, audit *auditpkg.Emitter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearer(r)
			decision, ident := g.Authorize(r.Context(), token, operationKey)

			event := &auditdomain.Event{
				EventType:    auditdomain.EventDecision,
				OperationKey: operationKey,
				Allowed:      &decision.Allowed,
				Reason:       decision.Reason,
				IPAddress:    r.RemoteAddr,
			}
			if ident != nil {
				event.UserID = ident.UserID
				event.TenantID = ident.TenantID
				event.SessionID = ident.SessionID
			}
			audit.EmitAsync(event)

			if !decision.Allowed {
				writeDenied(w, decision)
				return
			}
			ctx := WithIdentity(r.Context(), ident.UserID, ident.TenantID, ident.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractBearer returns the Bearer token from the Authorization header, or ""
// if missing or malformed.
func ExtractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func writeDenied(w http.ResponseWriter, d gate.Decision) {
	status := http.StatusForbidden
	switch d.Reason {
	case gate.ReasonTokenExpired, gate.ReasonTokenInvalid, gate.ReasonSessionRevoked:
		status = http.StatusUnauthorized
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":  "forbidden",
		"reason": d.Reason,
	})
}
