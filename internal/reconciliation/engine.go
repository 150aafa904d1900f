// Package reconciliation turns verified payment events into subscription
// state. It is the only place a payment grants access.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/subscriptiond/internal/payment/domain"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrRetryable marks failures the provider should redeliver.
var ErrRetryable = paymentdomain.ErrRetryable

var Module = fx.Module("reconciliation",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Log     *zap.Logger
	PlanSvc plandomain.Service
	SubSvc  subscriptiondomain.Service
}

type Engine struct {
	log     *zap.Logger
	planSvc plandomain.Service
	subSvc  subscriptiondomain.Service
}

func New(p Params) paymentdomain.Reconciler {
	return &Engine{
		log:     p.Log.Named("reconciliation"),
		planSvc: p.PlanSvc,
		subSvc:  p.SubSvc,
	}
}

// OnPaymentEvent applies one verified event. Everything except a storage
// failure is acknowledged; the returned label says what happened.
func (e *Engine) OnPaymentEvent(ctx context.Context, event *paymentdomain.PaymentEvent) (string, error) {
	if event == nil {
		return metrics.WebhookOutcomeMalformed, nil
	}

	log := e.log.With(
		zap.String("provider", event.Provider),
		zap.String("event_id", event.ProviderEventID),
		zap.String("event_type", event.Type),
	)

	if event.Type != paymentdomain.EventTypeCheckoutCompleted {
		log.Debug("reconciliation.event_ignored")
		return metrics.WebhookOutcomeIgnored, nil
	}

	userRef := strings.TrimSpace(event.Metadata[paymentdomain.MetadataUserID])
	planRef := strings.TrimSpace(event.Metadata[paymentdomain.MetadataPlanID])
	if userRef == "" || planRef == "" {
		log.Warn("reconciliation.malformed_event",
			zap.String("session_id", event.SessionID),
			zap.Bool("has_user", userRef != ""),
			zap.Bool("has_plan", planRef != ""),
			zap.Error(paymentdomain.ErrMalformedEvent),
		)
		return metrics.WebhookOutcomeMalformed, nil
	}

	userID, err := snowflake.ParseString(userRef)
	if err != nil || userID <= 0 {
		log.Warn("reconciliation.malformed_event",
			zap.String("session_id", event.SessionID),
			zap.String("user_ref", userRef),
			zap.Error(paymentdomain.ErrMalformedEvent),
		)
		return metrics.WebhookOutcomeMalformed, nil
	}

	plan, err := e.planSvc.Resolve(ctx, planRef)
	if err != nil {
		if errors.Is(err, plandomain.ErrNotFound) {
			log.Warn("reconciliation.unresolved_plan",
				zap.String("session_id", event.SessionID),
				zap.String("plan_ref", planRef),
			)
			return metrics.WebhookOutcomeUnresolved, nil
		}
		return metrics.WebhookOutcomeRetryable, fmt.Errorf("%w: resolve plan: %v", ErrRetryable, err)
	}

	amount := plan.Price
	res, err := e.subSvc.Activate(ctx, subscriptiondomain.ActivateRequest{
		UserID:         userID,
		Plan:           plan,
		PaymentID:      paymentReference(event),
		Amount:         &amount,
		Source:         subscriptiondomain.SourcePayment,
		SamePlanIsNoop: true,
	})
	switch {
	case errors.Is(err, subscriptiondomain.ErrAlreadySubscribed):
		log.Warn("reconciliation.conflicting_subscription",
			zap.String("session_id", event.SessionID),
			zap.String("user_id", userID.String()),
			zap.String("plan_id", plan.ID.String()),
		)
		return metrics.WebhookOutcomeConflict, nil
	case errors.Is(err, subscriptiondomain.ErrUserNotFound):
		log.Warn("reconciliation.malformed_event",
			zap.String("session_id", event.SessionID),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return metrics.WebhookOutcomeMalformed, nil
	case err != nil:
		log.Error("reconciliation.store_failed", zap.Error(err))
		return metrics.WebhookOutcomeRetryable, fmt.Errorf("%w: activate: %v", ErrRetryable, err)
	}

	if !res.Created {
		log.Info("reconciliation.duplicate_delivery",
			zap.String("subscription_id", res.Subscription.ID.String()),
		)
		return metrics.WebhookOutcomeDuplicate, nil
	}

	log.Info("reconciliation.activated",
		zap.String("subscription_id", res.Subscription.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("plan_id", plan.ID.String()),
	)
	return metrics.WebhookOutcomeActivated, nil
}

// paymentReference prefers the payment intent and falls back to the session.
func paymentReference(event *paymentdomain.PaymentEvent) *string {
	ref := strings.TrimSpace(event.PaymentIntentID)
	if ref == "" {
		ref = strings.TrimSpace(event.SessionID)
	}
	if ref == "" {
		return nil
	}
	return &ref
}
