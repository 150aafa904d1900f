package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/config"
	"github.com/smallbiznis/subscriptiond/internal/observability/metrics"
	"github.com/smallbiznis/subscriptiond/internal/payment/adapters"
	"github.com/smallbiznis/subscriptiond/internal/payment/domain"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	"github.com/smallbiznis/subscriptiond/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	"github.com/smallbiznis/subscriptiond/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	checkoutOutcomeCreated     = "created"
	checkoutOutcomeRejected    = "rejected"
	checkoutOutcomeUnavailable = "upstream_unavailable"
	checkoutOutcomeThrottled   = "throttled"

	defaultProviderTimeout = 10 * time.Second
)

// RateLimitError carries the wait hint for a throttled checkout.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return domain.ErrRateLimited.Error() }

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }

type Params struct {
	fx.In

	Cfg      config.Config
	Log      *zap.Logger
	PlanSvc  plandomain.Service
	SubSvc   subscriptiondomain.Service
	Adapters *adapters.Registry
	Limiter  *ratelimit.CheckoutLimiter `optional:"true"`
	Metrics  *metrics.Metrics           `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	planSvc   plandomain.Service
	subSvc    subscriptiondomain.Service
	provider  domain.Adapter
	limiter   *ratelimit.CheckoutLimiter
	metrics   *metrics.Metrics
	clientURL string
	timeout   time.Duration
}

func New(p Params) (domain.Gateway, error) {
	provider, err := p.Adapters.Adapter(domain.ProviderStripe)
	if err != nil {
		return nil, fmt.Errorf("checkout gateway: %w", err)
	}
	timeout := p.Cfg.Stripe.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &Service{
		log:       p.Log.Named("payment.gateway"),
		planSvc:   p.PlanSvc,
		subSvc:    p.SubSvc,
		provider:  provider,
		limiter:   p.Limiter,
		metrics:   p.Metrics,
		clientURL: strings.TrimRight(p.Cfg.ClientURL, "/"),
		timeout:   timeout,
	}, nil
}

func (s *Service) CreateSession(ctx context.Context, userID snowflake.ID, planRef string) (*domain.CheckoutSession, error) {
	planRef = strings.TrimSpace(planRef)
	if planRef == "" {
		return nil, validation.New("plan_id", "required", "plan_id is required")
	}

	userKey := userID.String()
	if err := s.throttle(ctx, userKey); err != nil {
		return nil, err
	}

	token, ok, err := s.limiter.TryLock(ctx, userKey)
	if err != nil {
		s.log.Warn("checkout lock unavailable, continuing without it", zap.Error(err))
	} else if !ok {
		s.metrics.RecordCheckoutSession(ctx, checkoutOutcomeThrottled)
		return nil, domain.ErrCheckoutInProgress
	} else if token != "" {
		defer func() {
			if err := s.limiter.Release(context.WithoutCancel(ctx), userKey, token); err != nil {
				s.log.Warn("checkout lock release failed", zap.Error(err))
			}
		}()
	}

	plan, err := s.planSvc.Resolve(ctx, planRef)
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, checkoutOutcomeRejected)
		return nil, err
	}

	current, err := s.subSvc.GetCurrent(ctx, userID, authdomain.RoleUser)
	if err != nil {
		return nil, err
	}
	if current != nil {
		s.metrics.RecordCheckoutSession(ctx, checkoutOutcomeRejected)
		return nil, subscriptiondomain.ErrAlreadySubscribed
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	planID := plan.ID.String()
	attempt := ulid.Make().String()
	session, err := s.provider.CreateCheckoutSession(callCtx, domain.CheckoutRequest{
		UserID:         userKey,
		PlanID:         planID,
		PlanName:       plan.Name,
		Currency:       plan.Currency,
		UnitAmount:     plan.UnitAmount(),
		DurationDays:   plan.DurationDays,
		SuccessURL:     s.clientURL + "/payment-success?session_id={CHECKOUT_SESSION_ID}&plan_id=" + url.QueryEscape(planID),
		CancelURL:      s.clientURL + "/plans?cancelled=true",
		IdempotencyKey: "checkout-" + attempt,
	})
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, checkoutOutcomeUnavailable)
		s.log.Error("checkout session create failed",
			zap.String("user_id", userKey),
			zap.String("plan_id", planID),
			zap.String("attempt", attempt),
			zap.Error(err),
		)
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	s.metrics.RecordCheckoutSession(ctx, checkoutOutcomeCreated)
	s.log.Info("checkout session created",
		zap.String("user_id", userKey),
		zap.String("plan_id", planID),
		zap.String("session_id", session.SessionID),
		zap.String("attempt", attempt),
	)
	return session, nil
}

// SessionStatus reports what the provider knows about a session the caller
// created. Sessions of other users look absent.
func (s *Service) SessionStatus(ctx context.Context, userID snowflake.ID, sessionID string) (*domain.CheckoutSessionStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status, err := s.provider.GetCheckoutSession(callCtx, sessionID)
	if err != nil {
		return nil, err
	}
	// Every session created here carries the buyer; anything else is not theirs.
	if status.ClientReferenceID != userID.String() {
		return nil, domain.ErrSessionNotFound
	}
	return status, nil
}

func (s *Service) throttle(ctx context.Context, userKey string) error {
	res, err := s.limiter.Allow(ctx, userKey)
	if err != nil {
		s.log.Warn("checkout rate limit unavailable, allowing request", zap.Error(err))
		return nil
	}
	if res.Allowed {
		return nil
	}
	s.metrics.RecordRateLimitDenied(ctx, "checkout_sessions", "user_bucket")
	s.metrics.RecordCheckoutSession(ctx, checkoutOutcomeThrottled)
	return &RateLimitError{RetryAfter: res.RetryAfter}
}
