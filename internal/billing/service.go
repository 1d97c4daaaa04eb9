// Package billing syncs Stripe subscription state into subscription plans.
// Stripe is the source of truth for what a tenant has paid for; the webhook
// keeps the local plan row current so the authorization gate never calls out.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"caresight/backend/internal/entitlement/domain"
	tenantdomain "caresight/backend/internal/tenant/domain"
)

// PlanSpec is what a Stripe price buys: the plan code and its capacity caps.
type PlanSpec struct {
	PlanCode   string
	MaxCameras int
	MaxSites   int
}

// PlanActivator is the minimal plan repository needed by billing.
type PlanActivator interface {
	Activate(ctx context.Context, p *domain.SubscriptionPlan) error
}

// TenantGetter checks that the tenant a subscription names actually exists.
type TenantGetter interface {
	GetByID(ctx context.Context, id string) (*tenantdomain.Tenant, error)
}

// CacheInvalidator evicts cached entitlement state after a plan change.
type CacheInvalidator interface {
	Invalidate(tenantID string)
}

// Service applies Stripe subscription events to tenant plans.
type Service struct {
	plans         PlanActivator
	tenants       TenantGetter
	cache         CacheInvalidator
	webhookSecret string
	priceToPlan   map[string]PlanSpec
	log           zerolog.Logger
}

// NewService returns a billing service. priceToPlan maps Stripe price IDs to
// the plan they purchase.
func NewService(plans PlanActivator, tenants TenantGetter, cache CacheInvalidator, webhookSecret string, priceToPlan map[string]PlanSpec, log zerolog.Logger) *Service {
	return &Service{
		plans:         plans,
		tenants:       tenants,
		cache:         cache,
		webhookSecret: webhookSecret,
		priceToPlan:   priceToPlan,
		log:           log,
	}
}

// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
func (s *Service) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

// ApplySubscription activates the plan purchased by the subscription. The
// tenant comes from subscription metadata; the plan from the first item's
// price. Unknown prices and missing tenants are logged and skipped, never
// retried into a poison loop.
func (s *Service) ApplySubscription(ctx context.Context, sub *stripe.Subscription) error {
	tenantID := sub.Metadata["tenant_id"]
	if tenantID == "" {
		s.log.Warn().Str("subscription_id", sub.ID).Msg("billing: subscription has no tenant_id metadata")
		return nil
	}
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("look up tenant %s: %w", tenantID, err)
	}
	if tenant == nil {
		s.log.Warn().Str("subscription_id", sub.ID).Str("tenant_id", tenantID).Msg("billing: subscription names an unknown tenant")
		return nil
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		s.log.Warn().Str("subscription_id", sub.ID).Msg("billing: subscription has no price")
		return nil
	}
	priceID := sub.Items.Data[0].Price.ID
	spec, ok := s.priceToPlan[priceID]
	if !ok {
		s.log.Warn().Str("price_id", priceID).Msg("billing: unmapped stripe price")
		return nil
	}

	active := sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing
	plan := &domain.SubscriptionPlan{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		PlanCode:      spec.PlanCode,
		LicenseActive: active,
		MaxCameras:    spec.MaxCameras,
		MaxSites:      spec.MaxSites,
		ActivatedAt:   time.Now().UTC(),
	}
	if err := s.plans.Activate(ctx, plan); err != nil {
		return fmt.Errorf("activate plan for tenant %s: %w", tenantID, err)
	}
	s.cache.Invalidate(tenantID)
	s.log.Info().
		Str("tenant_id", tenantID).
		Str("plan_code", spec.PlanCode).
		Bool("license_active", active).
		Msg("billing: plan synced from stripe")
	return nil
}

func unmarshalSubscription(event stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("parse subscription from event %s: %w", event.ID, err)
	}
	return &sub, nil
}
