package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rentalytics/rei-gateway/internal/config"
	"github.com/rentalytics/rei-gateway/internal/logger"
	"github.com/rentalytics/rei-gateway/internal/metrics"
	"github.com/rentalytics/rei-gateway/internal/model"
	"github.com/rentalytics/rei-gateway/internal/payment"
	"github.com/rentalytics/rei-gateway/internal/repository"
	"github.com/rentalytics/rei-gateway/internal/util"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
)

const BillingEventsKafkaTopic = "billing.events"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrNoSubscription      = errors.New("no active subscription found for user")
	ErrNoSubscriptionItems = errors.New("subscription has no items")
	ErrMissingUserRef      = errors.New("no user reference on checkout session")
	ErrPriceNotConfigured  = errors.New("price id not configured")
)

// Service is the subscription reconciliation engine. Local state changes only
// from provider-confirmed data: direct calls mirror the provider's response,
// webhook events mirror the event payload. Every transition is idempotent and
// updates only the columns it owns.
type Service struct {
	db       *sqlx.DB
	configs  repository.UserConfigsRepository
	outbox   repository.OutboxRepository
	provider payment.Provider

	monthlyPriceID string
	yearlyPriceID  string
	successURL     string
	cancelURL      string
}

func New(
	db *sqlx.DB,
	configsRepo repository.UserConfigsRepository,
	outboxRepo repository.OutboxRepository,
	provider payment.Provider,
	cfg config.StripeConfig,
) *Service {
	return &Service{
		db:             db,
		configs:        configsRepo,
		outbox:         outboxRepo,
		provider:       provider,
		monthlyPriceID: cfg.MonthlyPriceID,
		yearlyPriceID:  cfg.YearlyPriceID,
		successURL:     cfg.SuccessURL,
		cancelURL:      cfg.CancelURL,
	}
}

func (s *Service) priceForCycle(c model.BillingCycle) string {
	if c == model.CycleYearly {
		return s.yearlyPriceID
	}
	return s.monthlyPriceID
}

func (s *Service) cycleForPrice(priceID string) model.BillingCycle {
	if priceID == s.yearlyPriceID {
		return model.CycleYearly
	}
	return model.CycleMonthly
}

func (s *Service) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if s.db == nil {
		return fn(nil)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ---- Direct calls ----

// CreateCheckoutSession starts a provider checkout for the user. No local
// state is mutated; activation happens when the webhook confirms completion.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID string, cycle model.BillingCycle) (*payment.CheckoutSession, error) {
	priceID := s.priceForCycle(cycle)
	if priceID == "" {
		return nil, ErrPriceNotConfigured
	}

	return s.provider.CreateCheckoutSession(ctx, payment.CheckoutParams{
		PriceID:    priceID,
		UserID:     userID,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
	})
}

// SetCancelAtPeriodEnd flags (or unflags) the provider subscription for
// cancellation at period end and mirrors the result locally.
func (s *Service) SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) (*payment.Subscription, error) {
	cfg, err := s.configs.Get(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrUserNotFound
	}
	if cfg.SubscriptionID == nil || *cfg.SubscriptionID == "" {
		return nil, ErrNoSubscription
	}

	sub, err := s.provider.SetCancelAtPeriodEnd(ctx, *cfg.SubscriptionID, cancel)
	if err != nil {
		return nil, fmt.Errorf("provider update: %w", err)
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.configs.MirrorPeriod(ctx, tx, userID, periodEnd(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd); err != nil {
			return err
		}
		return s.emitBillingEvent(ctx, tx, model.AuditSubscriptionUpdated, userID, sub.ID,
			fmt.Sprintf(`{"cancel_at_period_end":%t}`, sub.CancelAtPeriodEnd))
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ChangeBillingCycle swaps the subscription item's price to the other cycle
// with an immediate proration invoice, then mirrors the cycle locally.
func (s *Service) ChangeBillingCycle(ctx context.Context, userID string, newCycle model.BillingCycle) error {
	cfg, err := s.configs.Get(ctx, nil, userID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrUserNotFound
	}
	if cfg.SubscriptionID == nil || *cfg.SubscriptionID == "" {
		return ErrNoSubscription
	}

	priceID := s.priceForCycle(newCycle)
	if priceID == "" {
		return ErrPriceNotConfigured
	}

	sub, err := s.provider.GetSubscription(ctx, *cfg.SubscriptionID)
	if err != nil {
		return fmt.Errorf("provider retrieve: %w", err)
	}
	if sub.ItemID == "" {
		return ErrNoSubscriptionItems
	}

	if _, err := s.provider.SwapItemPrice(ctx, sub.ID, sub.ItemID, priceID); err != nil {
		return fmt.Errorf("provider update: %w", err)
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.configs.SetBillingCycle(ctx, tx, userID, newCycle); err != nil {
			return err
		}
		return s.emitBillingEvent(ctx, tx, model.AuditSubscriptionUpdated, userID, sub.ID,
			fmt.Sprintf(`{"billingCycle":%q}`, newCycle))
	})
}

// ---- Webhook events ----

// HandleEvent applies a provider webhook event. Events the engine does not
// care about are acknowledged and skipped. A subscription event whose
// metadata lacks a userId is logged and acknowledged (the provider would
// redeliver forever otherwise); a checkout completion without a user
// reference is a hard failure.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.applyCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		return s.applySubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.applySubscriptionDeleted(ctx, event)
	default:
		logger.Log.Debug("unhandled billing event type", zap.String("type", string(event.Type)))
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "skipped").Inc()
		return nil
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}

	userID := cs.ClientReferenceID
	if userID == "" {
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "failed").Inc()
		return ErrMissingUserRef
	}
	if cs.Subscription == nil || cs.Subscription.ID == "" {
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "failed").Inc()
		return fmt.Errorf("checkout session %s has no subscription", cs.ID)
	}

	// The session carries only the subscription id; the price (and thus the
	// billing cycle) comes from the provider.
	sub, err := s.provider.GetSubscription(ctx, cs.Subscription.ID)
	if err != nil {
		return fmt.Errorf("provider retrieve: %w", err)
	}
	cycle := s.cycleForPrice(sub.PriceID)

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		matched, err := s.configs.ActivateSubscription(ctx, tx, userID, sub.ID, cycle)
		if err != nil {
			return err
		}
		if !matched {
			return ErrUserNotFound
		}
		return s.emitBillingEvent(ctx, tx, model.AuditSubscriptionActivated, userID, sub.ID,
			fmt.Sprintf(`{"billingCycle":%q}`, cycle))
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "failed").Inc()
		return err
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "ok").Inc()
	logger.Log.Info("subscription activated via checkout session", zap.String("user_id", userID))
	return nil
}

func (s *Service) applySubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}

	userID := sub.Metadata["userId"]
	if userID == "" {
		logger.Log.Warn("subscription updated without userId metadata, skipping", zap.String("subscription_id", sub.ID))
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "skipped").Inc()
		return nil
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.configs.MirrorPeriod(ctx, tx, userID, periodEnd(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd); err != nil {
			return err
		}
		return s.emitBillingEvent(ctx, tx, model.AuditSubscriptionUpdated, userID, sub.ID,
			fmt.Sprintf(`{"cancel_at_period_end":%t,"current_period_end":%d}`, sub.CancelAtPeriodEnd, sub.CurrentPeriodEnd))
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "failed").Inc()
		return err
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "ok").Inc()
	return nil
}

func (s *Service) applySubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}

	userID := sub.Metadata["userId"]
	if userID == "" {
		logger.Log.Warn("subscription deleted without userId metadata, skipping", zap.String("subscription_id", sub.ID))
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "skipped").Inc()
		return nil
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.configs.Deactivate(ctx, tx, userID); err != nil {
			return err
		}
		return s.emitBillingEvent(ctx, tx, model.AuditSubscriptionDeleted, userID, sub.ID, `{}`)
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "failed").Inc()
		return err
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "ok").Inc()
	logger.Log.Info("subscription fully cancelled", zap.String("user_id", userID))
	return nil
}

func (s *Service) emitBillingEvent(ctx context.Context, tx *sqlx.Tx, kind model.AuditEventKind, userID, subscriptionID, detail string) error {
	ev := model.AuditEvent{
		ID:        util.New(),
		Kind:      kind,
		UserID:    userID,
		Subject:   subscriptionID,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, "subscription", subscriptionID, BillingEventsKafkaTopic, payload)
}

// periodEnd maps the provider's zero value to NULL so a missing period end is
// never stored as epoch 0.
func periodEnd(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
