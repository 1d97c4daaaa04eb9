package billing

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// Stripe webhook bodies are small; anything past this is not a real event.
const maxWebhookBody = 65536

// WebhookHandler receives Stripe webhook events. The route is public; the
// webhook signature is the authentication.
type WebhookHandler struct {
	billing *Service
	log     zerolog.Logger
}

// NewWebhookHandler returns a WebhookHandler. billing may be nil when Stripe
// is not configured; events are then acknowledged and dropped.
func NewWebhookHandler(billing *Service, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{billing: billing, log: log}
}

// RegisterRoutes registers webhook routes on the mux, outside auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies the signature and applies subscription events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.log.Warn().Msg("billing: stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	event, err := h.billing.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.log.Warn().Err(err).Msg("billing: webhook signature verification failed")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		sub, err := unmarshalSubscription(event)
		if err != nil {
			h.log.Error().Err(err).Msg("billing: bad subscription payload")
			break
		}
		if err := h.billing.ApplySubscription(r.Context(), sub); err != nil {
			h.log.Error().Err(err).Msg("billing: failed to apply subscription")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	default:
		h.log.Debug().Str("type", string(event.Type)).Msg("billing: unhandled webhook event type")
	}

	w.WriteHeader(http.StatusOK)
}
