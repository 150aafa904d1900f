package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pushInterval = 10 * time.Second

// Config configures OTLP metric export. Prometheus collectors are always
// registered; OTLP push is opt-in.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

func (c Config) service() string {
	if name := strings.TrimSpace(c.ServiceName); name != "" {
		return name
	}
	return "subscriptiond"
}

// NewProvider installs the global meter provider. Disabled export yields a
// noop provider so instruments stay callable.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.service()),
			attribute.String("deployment.environment", cfg.Environment),
		)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(pushInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	if log != nil {
		log.Named("metrics").Info("otlp metric export enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", pushInterval),
		)
	}
	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Metrics holds the OTLP business counters.
type Metrics struct {
	paymentEvents    metric.Int64Counter
	activations      metric.Int64Counter
	checkoutSessions metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// New creates the business counters on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(cfg.service())

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	m := &Metrics{
		paymentEvents:    counter("subscriptiond_payment_events_total", "Verified webhook events by handling outcome."),
		activations:      counter("subscriptiond_subscription_activations_total", "Subscriptions created, by source."),
		checkoutSessions: counter("subscriptiond_checkout_sessions_total", "Checkout session requests by outcome."),
		rateLimitDenied:  counter("subscriptiond_rate_limit_denied_total", "Requests refused by a rate limiter."),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if m == nil || c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, m.paymentEvents, label("provider", provider), label("event_type", eventType), label("outcome", outcome))
}

// RecordActivation counts created subscriptions; source is payment, manual
// or upgrade.
func (m *Metrics) RecordActivation(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.add(ctx, m.activations, label("source", source))
}

func (m *Metrics) RecordCheckoutSession(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, m.checkoutSessions, label("outcome", outcome))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimitDenied, label("endpoint", endpoint), label("reason", reason))
}

// Label keys allowed on OTLP counters. User, plan and subscription ids are
// never labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"outcome":     {},
	"source":      {},
	"reason":      {},
}

// FilterAttributes drops labels outside the low-cardinality allowlist.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0:0]
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}
