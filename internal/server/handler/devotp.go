package handler

import (
	"net/http"

	"caresight/backend/internal/devotp"
	otpservice "caresight/backend/internal/otp/service"
)

// DevOTPHandler exposes plain OTP codes for local development. Wired only when
// dev OTP mode is enabled; config refuses that in production.
type DevOTPHandler struct {
	store devotp.Store
}

// NewDevOTPHandler returns a DevOTPHandler over the dev OTP store.
func NewDevOTPHandler(store devotp.Store) *DevOTPHandler {
	return &DevOTPHandler{store: store}
}

// RegisterRoutes registers the dev OTP route on the mux.
func (h *DevOTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /dev/otp", h.GetCode)
}

// GetCode returns the live code for ?phone=, or 404 when none exists.
func (h *DevOTPHandler) GetCode(w http.ResponseWriter, r *http.Request) {
	phone, err := otpservice.NormalizePhone(r.URL.Query().Get("phone"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_phone")
		return
	}
	code, ok := h.store.Get(r.Context(), phone)
	if !ok {
		writeError(w, http.StatusNotFound, "no_active_challenge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phone": phone, "code": code})
}
