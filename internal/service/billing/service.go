package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	mqcontracts "interruptd/contracts/mq"
	"interruptd/internal/apperr"
	"interruptd/internal/model"
	"interruptd/internal/repository"
	"interruptd/pkg/logger"
	"interruptd/pkg/metrics"
)

// ErrInvalidSignature means the webhook payload was not signed with our secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

const dedupScope = "stripe"

type Store interface {
	GetSubscription(ctx context.Context, userID int) (*model.Subscription, error)
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

// Deduper guards against processing the same webhook event twice.
type Deduper interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
	Release(ctx context.Context, scope, id string)
}

// Limits describes what a plan allows. A nil MaxActiveDefaults is unlimited.
type Limits struct {
	MaxActiveDefaults *int `json:"maxActiveDefaults"`
}

// View is the subscription as shown to the user.
type View struct {
	Plan   string `json:"plan"`
	Status string `json:"status"`
	Limits Limits `json:"limits"`
}

// Outcome tells the webhook caller what happened to an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type Service struct {
	store         Store
	dedup         Deduper
	webhookSecret string
	logger        *zap.Logger
}

func NewService(store Store, dedup Deduper, webhookSecret string, logger *zap.Logger) *Service {
	return &Service{store: store, dedup: dedup, webhookSecret: webhookSecret, logger: logger}
}

// Get returns the user's plan, status and limits.
func (s *Service) Get(ctx context.Context, userID int) (*View, error) {
	sub, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("subscription", strconv.Itoa(userID))
		}
		return nil, err
	}
	return viewOf(sub), nil
}

func viewOf(sub *model.Subscription) *View {
	v := &View{Plan: sub.Plan, Status: sub.Status}
	if limit, ok := model.ActivePatternLimit(sub.Plan); ok {
		v.Limits.MaxActiveDefaults = &limit
	}
	return v
}

// SetPlan overrides a user's plan from operator tooling.
func (s *Service) SetPlan(ctx context.Context, userID int, plan string) (*View, error) {
	if plan != model.PlanFree && plan != model.PlanPro {
		return nil, apperr.Invalid("plan", "must be %s or %s", model.PlanFree, model.PlanPro)
	}
	var out *model.Subscription
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		sub, err := tx.LockSubscription(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("subscription", strconv.Itoa(userID))
			}
			return err
		}
		sub.Plan = plan
		sub.Status = model.StatusActive
		out = sub
		return s.save(ctx, tx, sub, "")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("SetPlan: success", zap.Int("user_id", userID), zap.String("plan", plan))
	return viewOf(out), nil
}

// HandleWebhook verifies and applies a Stripe event. Any error other than
// ErrInvalidSignature leaves the event eligible for redelivery.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	log := logger.WithTrace(ctx, s.logger)

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		metrics.IncrementWebhookEvent("unknown", "invalid_signature")
		log.Warn("Rejected webhook", zap.Error(err))
		return "", ErrInvalidSignature
	}

	eventType := string(event.Type)
	if !s.dedup.AcquireOnce(ctx, dedupScope, event.ID) {
		metrics.IncrementWebhookEvent(eventType, string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	outcome, err := s.apply(ctx, event)
	if err != nil {
		s.dedup.Release(ctx, dedupScope, event.ID)
		metrics.IncrementWebhookEvent(eventType, "failed")
		log.Error("Failed to apply webhook event",
			zap.String("event_id", event.ID),
			zap.String("type", eventType),
			zap.Error(err),
		)
		return "", err
	}

	metrics.IncrementWebhookEvent(eventType, string(outcome))
	log.Info("Webhook event processed",
		zap.String("event_id", event.ID),
		zap.String("type", eventType),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, event stripe.Event) (Outcome, error) {
	if event.Data == nil {
		return OutcomeIgnored, nil
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return "", fmt.Errorf("decode checkout session: %w", err)
		}
		return s.applyCheckout(ctx, event.ID, &session)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", fmt.Errorf("decode subscription: %w", err)
		}
		return s.applySubscription(ctx, event.ID, &sub)
	}

	return OutcomeIgnored, nil
}

func (s *Service) applyCheckout(ctx context.Context, eventID string, session *stripe.CheckoutSession) (Outcome, error) {
	ref := session.ClientReferenceID
	if ref == "" {
		ref = session.Metadata["userId"]
	}
	userID, err := strconv.Atoi(ref)
	if err != nil || session.Customer == nil || session.Customer.ID == "" {
		return OutcomeIgnored, nil
	}

	outcome := OutcomeApplied
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		sub, err := tx.LockSubscription(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			outcome = OutcomeIgnored
			return nil
		}
		if err != nil {
			return err
		}

		customerID := session.Customer.ID
		sub.StripeCustomerID = &customerID
		if session.Subscription != nil && session.Subscription.ID != "" {
			subID := session.Subscription.ID
			sub.StripeSubscriptionID = &subID
		}
		sub.Plan = model.PlanPro
		sub.Status = model.StatusActive
		return s.save(ctx, tx, sub, eventID)
	})
	return outcome, err
}

func (s *Service) applySubscription(ctx context.Context, eventID string, in *stripe.Subscription) (Outcome, error) {
	if in.Customer == nil || in.Customer.ID == "" {
		return OutcomeIgnored, nil
	}

	outcome := OutcomeApplied
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		sub, err := tx.LockSubscriptionByCustomer(ctx, in.Customer.ID)
		if errors.Is(err, repository.ErrNotFound) {
			// customer not linked to any user yet
			outcome = OutcomeIgnored
			return nil
		}
		if err != nil {
			return err
		}

		sub.Status = MapStatus(in.Status)
		sub.Plan = PlanFor(sub.Status)
		subID := in.ID
		sub.StripeSubscriptionID = &subID
		if in.CurrentPeriodEnd > 0 {
			end := time.Unix(in.CurrentPeriodEnd, 0).UTC()
			sub.CurrentPeriodEnd = &end
		}
		return s.save(ctx, tx, sub, eventID)
	})
	return outcome, err
}

func (s *Service) save(ctx context.Context, tx repository.Tx, sub *model.Subscription, eventID string) error {
	if err := tx.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	return tx.Emit(ctx, mqcontracts.AggregateSubscription, strconv.Itoa(sub.UserID), mqcontracts.RoutingSubscriptionChanged,
		mqcontracts.SubscriptionChangedPayload{
			UserID:      sub.UserID,
			Plan:        sub.Plan,
			Status:      sub.Status,
			StripeEvent: eventID,
		})
}

// MapStatus converts a Stripe subscription status to ours.
func MapStatus(status stripe.SubscriptionStatus) string {
	switch string(status) {
	case "active":
		return model.StatusActive
	case "trialing":
		return model.StatusTrialing
	case "past_due":
		return model.StatusPastDue
	case "canceled":
		return model.StatusCanceled
	default:
		return model.StatusIncomplete
	}
}

// PlanFor returns PRO only for subscriptions that are paid up or trialing.
func PlanFor(status string) string {
	if status == model.StatusActive || status == model.StatusTrialing {
		return model.PlanPro
	}
	return model.PlanFree
}
