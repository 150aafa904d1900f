package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "stripe"),
		attribute.String("user_id", "456"),
		attribute.String("outcome", "activated"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatalf("expected user_id to be dropped")
		}
	}
}

func TestClassifyStoreError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: StoreErrorReasonDeadlineExceeded},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: StoreErrorReasonLockTimeout},
		{name: "serialization", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), want: StoreErrorReasonSerializationFailure},
		{name: "unique", err: gorm.ErrDuplicatedKey, want: StoreErrorReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: StoreErrorReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyStoreError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestWebhookMetricsCountsDeliveries(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newWebhookMetrics(registry, Config{ServiceName: "subscriptiond", Environment: "test"})

	m.IncDelivery("stripe", WebhookOutcomeActivated)
	m.IncDelivery("stripe", WebhookOutcomeActivated)
	m.IncDelivery("stripe", WebhookOutcomeDuplicate)

	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("stripe", WebhookOutcomeActivated)); got != 2 {
		t.Fatalf("expected 2 activations, got %v", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("stripe", WebhookOutcomeDuplicate)); got != 1 {
		t.Fatalf("expected 1 duplicate, got %v", got)
	}
}

func TestSchedulerMetricsClassifyJobErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetrics(registry, Config{ServiceName: "subscriptiond", Environment: "test"})

	m.IncJobRun("expire_lapsed")
	m.IncJobError("expire_lapsed", context.DeadlineExceeded)
	m.IncLockUnavailable("expire_lapsed")
	m.AddProcessed("expire_lapsed", 3)
	m.AddProcessed("expire_lapsed", 0)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("expire_lapsed")); got != 1 {
		t.Fatalf("expected 1 run, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("expire_lapsed", StoreErrorReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 deadline error, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("expire_lapsed", SchedulerJobReasonLockUnavailable)); got != 1 {
		t.Fatalf("expected 1 lock error, got %v", got)
	}
	if got := testutil.ToFloat64(m.processed.WithLabelValues("expire_lapsed")); got != 3 {
		t.Fatalf("expected 3 processed, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordPaymentEvent(context.Background(), "stripe", "checkout.session.completed", "activated")
	var w *WebhookMetrics
	w.IncDelivery("stripe", WebhookOutcomeIgnored)
	w.IncStoreError(errors.New("x"))
	var s *SchedulerMetrics
	s.IncJobRun("x")
	s.AddProcessed("x", 1)
}

func TestBusinessCountersOnNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.RecordPaymentEvent(context.Background(), "stripe", "checkout.session.completed", "activated")
	m.RecordActivation(context.Background(), "payment")

	var nilMetrics *Metrics
	nilMetrics.RecordCheckoutSession(context.Background(), "created")
	nilMetrics.RecordRateLimitDenied(context.Background(), "checkout_sessions", "user_bucket")
}
