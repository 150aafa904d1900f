package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WebhookOutcomeActivated  = "activated"
	WebhookOutcomeDuplicate  = "duplicate"
	WebhookOutcomeIgnored    = "ignored"
	WebhookOutcomeMalformed  = "malformed"
	WebhookOutcomeConflict   = "conflict"
	WebhookOutcomeRejected   = "rejected"
	WebhookOutcomeRetryable  = "retryable"
	WebhookOutcomeUnresolved = "unresolved_plan"
)

const (
	StoreErrorReasonDeadlineExceeded     = "deadline_exceeded"
	StoreErrorReasonLockTimeout          = "db_lock_timeout"
	StoreErrorReasonSerializationFailure = "serialization_failure"
	StoreErrorReasonUniqueViolation      = "unique_violation"
	StoreErrorReasonUnknown              = "unknown"
)

// WebhookMetrics tracks reconciliation health: how deliveries end and why
// storage writes fail.
type WebhookMetrics struct {
	deliveries  *prometheus.CounterVec
	duration    prometheus.Observer
	storeErrors *prometheus.CounterVec
}

var (
	webhookMetricsOnce sync.Once
	webhookMetrics     *WebhookMetrics
)

// Webhook returns the process-wide webhook metrics registered on the default registry.
func Webhook(cfg Config) *WebhookMetrics {
	webhookMetricsOnce.Do(func() {
		webhookMetrics = newWebhookMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return webhookMetrics
}

func newWebhookMetrics(registerer prometheus.Registerer, cfg Config) *WebhookMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := serviceLabels(cfg)

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subscriptiond_webhook_deliveries_total",
		Help:        "Webhook deliveries by provider and outcome.",
		ConstLabels: constLabels,
	}, []string{"provider", "outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "subscriptiond_reconciliation_duration_seconds",
		Help:        "Time spent turning a verified event into a subscription write.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	})
	storeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subscriptiond_subscription_store_errors_total",
		Help:        "Subscription write failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})

	registerer.MustRegister(deliveries, duration, storeErrors)

	return &WebhookMetrics{
		deliveries:  deliveries,
		duration:    duration,
		storeErrors: storeErrors,
	}
}

func (m *WebhookMetrics) IncDelivery(provider, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(provider, outcome).Inc()
}

func (m *WebhookMetrics) ObserveReconciliation(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *WebhookMetrics) IncStoreError(err error) {
	if m == nil || err == nil {
		return
	}
	m.storeErrors.WithLabelValues(ClassifyStoreError(err)).Inc()
}

// ClassifyStoreError maps storage errors to low-cardinality reasons.
func ClassifyStoreError(err error) string {
	if err == nil {
		return StoreErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StoreErrorReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return StoreErrorReasonLockTimeout
	}
	if hasPGCode(err, "40001") {
		return StoreErrorReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return StoreErrorReasonUniqueViolation
	}
	return StoreErrorReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
