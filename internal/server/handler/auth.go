package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	auditpkg "caresight/backend/internal/audit"
	auditdomain "caresight/backend/internal/audit/domain"
	authservice "caresight/backend/internal/auth/service"
	"caresight/backend/internal/server/middleware"
)

// AuthHandler serves the phone-OTP auth API. All routes are public; the
// credentials are in the bodies, not in bearer tokens.
type AuthHandler struct {
	auth      *authservice.AuthService
	validator *authservice.SessionValidator
	audit     *auditpkg.Emitter
	log       zerolog.Logger
}

// NewAuthHandler returns an AuthHandler with the given dependencies.
func NewAuthHandler(auth *authservice.AuthService, validator *authservice.SessionValidator, audit *auditpkg.Emitter, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, validator: validator, audit: audit, log: log}
}

// RegisterRoutes registers the auth routes on the mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/auth/otp/request", h.RequestOTP)
	mux.HandleFunc("POST /v1/auth/otp/verify", h.VerifyOTP)
	mux.HandleFunc("POST /v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /v1/auth/logout", h.Logout)
}

type requestOTPRequest struct {
	Phone string `json:"phone"`
}

// RequestOTP issues an OTP challenge for the phone. The response does not
// reveal whether the phone belongs to a user.
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	if err := h.auth.RequestOTP(r.Context(), req.Phone); err != nil {
		writeServiceError(w, err)
		return
	}
	h.audit.EmitAsync(&auditdomain.Event{
		EventType: auditdomain.EventOTPRequested,
		IPAddress: r.RemoteAddr,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "challenge_sent"})
}

type verifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	TenantID     string    `json:"tenant_id"`
}

// VerifyOTP verifies the code and returns a token pair. The access token is
// also set as the dashboard session cookie.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	res, err := h.auth.VerifyOTP(r.Context(), req.Phone, req.Code, r.RemoteAddr)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.audit.EmitAsync(&auditdomain.Event{
		EventType: auditdomain.EventLogin,
		TenantID:  res.TenantID,
		UserID:    res.UserID,
		SessionID: res.SessionID,
		IPAddress: r.RemoteAddr,
	})
	setSessionCookie(w, res.AccessToken, res.ExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
		UserID:       res.UserID,
		TenantID:     res.TenantID,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates the refresh token and returns a fresh token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.audit.EmitAsync(&auditdomain.Event{
		EventType: auditdomain.EventTokenRefresh,
		TenantID:  res.TenantID,
		UserID:    res.UserID,
		SessionID: res.SessionID,
		IPAddress: r.RemoteAddr,
	})
	setSessionCookie(w, res.AccessToken, res.ExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
		UserID:       res.UserID,
		TenantID:     res.TenantID,
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the session named by the refresh token, or by the bearer
// access token when no body is given. Always 204; logout never fails the client.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = decodeJSON(r, &req) // empty body is fine

	sessionID := ""
	if token := middleware.ExtractBearer(r); token != "" {
		// Best effort: a dead token just means nothing to revoke.
		if ident, err := h.validator.ValidateAccess(r.Context(), token); err == nil {
			sessionID = ident.SessionID
		}
	}
	if err := h.auth.Logout(r.Context(), req.RefreshToken, sessionID); err != nil {
		h.log.Error().Err(err).Msg("auth: logout failed")
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	h.audit.EmitAsync(&auditdomain.Event{
		EventType: auditdomain.EventLogout,
		SessionID: sessionID,
		IPAddress: r.RemoteAddr,
	})
	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
