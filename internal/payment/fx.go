package payment

import (
	"github.com/smallbiznis/subscriptiond/internal/config"
	"github.com/smallbiznis/subscriptiond/internal/payment/adapters"
	"github.com/smallbiznis/subscriptiond/internal/payment/adapters/stripe"
	"github.com/smallbiznis/subscriptiond/internal/payment/gateway"
	"github.com/smallbiznis/subscriptiond/internal/payment/repository"
	"github.com/smallbiznis/subscriptiond/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(newRegistry),
	fx.Provide(gateway.New),
	fx.Provide(webhook.NewService),
)

func newRegistry(cfg config.Config, log *zap.Logger) *adapters.Registry {
	if cfg.Stripe.SecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY is empty, checkout sessions will fail")
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET is empty, every webhook will be rejected")
	}
	return adapters.NewRegistry(
		stripe.New(stripe.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Timeout:       cfg.Stripe.Timeout,
		}),
	)
}
