// Package poller waits for a paid checkout to show up as a subscription.
//
// The webhook, not the browser redirect, creates the subscription, so the
// success page has to poll. The poller asks the server for the current
// subscription and, while it is absent, asks the provider-backed session
// status to tell "still in flight" from "payment failed".
package poller

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/subscriptiond/pkg/client"
)

type Outcome string

const (
	// OutcomeActive means the subscription is visible.
	OutcomeActive Outcome = "active"
	// OutcomeStillProcessing means the budget ran out and the provider
	// status was unknown or unpaid-open.
	OutcomeStillProcessing Outcome = "still_processing"
	// OutcomeActivationDelayed means the provider reports paid but the
	// subscription is not visible yet.
	OutcomeActivationDelayed Outcome = "activation_delayed"
	// OutcomePaymentFailed means the session expired or completed unpaid.
	OutcomePaymentFailed Outcome = "payment_failed"
)

// Source is the slice of the API client the poller uses.
type Source interface {
	CurrentSubscription(ctx context.Context) (*client.Subscription, error)
	CheckoutSession(ctx context.Context, sessionID string) (*client.CheckoutSessionStatus, error)
}

type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     10,
		InitialInterval: time.Second,
		MaxInterval:     8 * time.Second,
	}
}

type Result struct {
	Outcome      Outcome
	Subscription *client.Subscription
	// Session is the last provider status seen, if any.
	Session  *client.CheckoutSessionStatus
	Attempts int
}

type Poller struct {
	src Source
	cfg Config
}

func New(src Source, cfg Config) *Poller {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	return &Poller{src: src, cfg: cfg}
}

var errPending = errors.New("activation_pending")

// WaitForActivation polls until the subscription is visible, the provider
// reports a failed payment, or the attempt budget runs out. Transient
// errors from either call count as "not yet". The returned error is only
// ever the context's.
func (p *Poller) WaitForActivation(ctx context.Context, sessionID string) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	result := &Result{}

	op := func() error {
		result.Attempts++

		sub, err := p.src.CurrentSubscription(ctx)
		if err == nil && sub != nil && strings.EqualFold(sub.Status, "active") {
			result.Outcome = OutcomeActive
			result.Subscription = sub
			return nil
		}

		if sessionID == "" {
			return errPending
		}
		status, err := p.src.CheckoutSession(ctx, sessionID)
		if err != nil || status == nil {
			return errPending
		}
		result.Session = status
		if paymentFailed(status) {
			result.Outcome = OutcomePaymentFailed
			return backoff.Permanent(errPending)
		}
		return errPending
	}

	err := backoff.Retry(op, p.schedule(ctx))
	if result.Outcome != "" {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Outcome = p.exhausted(result.Session)
		return result, ctxErr
	}
	if err != nil && !errors.Is(err, errPending) {
		return result, err
	}

	result.Outcome = p.exhausted(result.Session)
	return result, nil
}

func (p *Poller) schedule(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialInterval
	b.MaxInterval = p.cfg.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.MaxAttempts-1)), ctx)
}

func (p *Poller) exhausted(status *client.CheckoutSessionStatus) Outcome {
	if status != nil && paymentPaid(status) {
		return OutcomeActivationDelayed
	}
	return OutcomeStillProcessing
}

func paymentPaid(s *client.CheckoutSessionStatus) bool {
	switch strings.ToLower(s.PaymentStatus) {
	case "paid", "no_payment_required":
		return true
	default:
		return false
	}
}

func paymentFailed(s *client.CheckoutSessionStatus) bool {
	status := strings.ToLower(s.Status)
	if status == "expired" {
		return true
	}
	return status == "complete" && strings.EqualFold(s.PaymentStatus, "unpaid")
}
