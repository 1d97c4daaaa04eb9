// Package handler contains the HTTP JSON handlers for the auth API, the gated
// resource endpoints, and the dev OTP lookup.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	authservice "caresight/backend/internal/auth/service"
	otpservice "caresight/backend/internal/otp/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": http.StatusText(status), "reason": reason})
}

// writeServiceError maps service sentinel errors to HTTP status + reason.
// Unknown errors become a plain 500; internals never leak to clients.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, otpservice.ErrInvalidPhoneFormat):
		writeError(w, http.StatusBadRequest, "invalid_phone")
	case errors.Is(err, otpservice.ErrNoActiveChallenge):
		writeError(w, http.StatusUnauthorized, "no_active_challenge")
	case errors.Is(err, otpservice.ErrChallengeAlreadyConsumed):
		writeError(w, http.StatusUnauthorized, "challenge_consumed")
	case errors.Is(err, otpservice.ErrAttemptsExhausted):
		writeError(w, http.StatusUnauthorized, "attempts_exhausted")
	case errors.Is(err, otpservice.ErrCodeMismatch):
		writeError(w, http.StatusUnauthorized, "code_mismatch")
	case errors.Is(err, authservice.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, authservice.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
	case errors.Is(err, authservice.ErrExpiredRefreshToken):
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
	case errors.Is(err, authservice.ErrRefreshTokenReuse):
		writeError(w, http.StatusUnauthorized, "refresh_reuse_detected")
	default:
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
