package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/clock"
	"github.com/smallbiznis/subscriptiond/internal/observability/metrics"
	"github.com/smallbiznis/subscriptiond/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/subscriptiond/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const processTimeout = 15 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	Reconciler paymentdomain.Reconciler

	Metrics        *metrics.Metrics        `optional:"true"`
	WebhookMetrics *metrics.WebhookMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	adapters   *adapters.Registry
	reconciler paymentdomain.Reconciler

	metrics        *metrics.Metrics
	webhookMetrics *metrics.WebhookMetrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.webhook"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		adapters:       p.Adapters,
		reconciler:     p.Reconciler,
		metrics:        p.Metrics,
		webhookMetrics: p.WebhookMetrics,
	}
}

// IngestWebhook verifies, records and reconciles one provider delivery.
// A nil return acknowledges the delivery. Only ErrRetryable asks the
// provider to redeliver.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		s.webhookMetrics.IncDelivery(provider, metrics.WebhookOutcomeRejected)
		return paymentdomain.ErrInvalidPayload
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment.webhook.signature_rejected",
			zap.String("provider", provider),
			zap.Int("payload_bytes", len(payload)),
			zap.Error(err),
		)
		s.webhookMetrics.IncDelivery(provider, metrics.WebhookOutcomeRejected)
		return paymentdomain.ErrInvalidSignature
	}

	// Signed by the provider, so redelivery cannot fix it. Ack and drop.
	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		s.log.Warn("payment.webhook.malformed_event",
			zap.String("provider", provider),
			zap.Int("payload_bytes", len(payload)),
			zap.NamedError("cause", err),
			zap.Error(paymentdomain.ErrMalformedEvent),
		)
		s.webhookMetrics.IncDelivery(provider, metrics.WebhookOutcomeMalformed)
		return nil
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	record, fresh, err := s.record(ctx, event)
	if err != nil {
		s.webhookMetrics.IncStoreError(err)
		s.webhookMetrics.IncDelivery(provider, metrics.WebhookOutcomeRetryable)
		s.log.Error("payment event inbox write failed",
			zap.String("provider", provider),
			zap.String("event_id", event.ProviderEventID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", paymentdomain.ErrRetryable, err)
	}
	if record.ProcessedAt != nil {
		s.log.Info("payment event already processed",
			zap.String("provider", provider),
			zap.String("event_id", event.ProviderEventID),
		)
		s.webhookMetrics.IncDelivery(provider, metrics.WebhookOutcomeDuplicate)
		s.metrics.RecordPaymentEvent(ctx, provider, event.Type, metrics.WebhookOutcomeDuplicate)
		return nil
	}
	if !fresh {
		s.log.Info("reprocessing unfinished payment event",
			zap.String("provider", provider),
			zap.String("event_id", event.ProviderEventID),
		)
	}

	start := time.Now()
	outcome, err := s.reconciler.OnPaymentEvent(ctx, event)
	s.webhookMetrics.ObserveReconciliation(time.Since(start))
	if err != nil {
		s.webhookMetrics.IncStoreError(err)
		s.webhookMetrics.IncDelivery(provider, metrics.WebhookOutcomeRetryable)
		s.metrics.RecordPaymentEvent(ctx, provider, event.Type, metrics.WebhookOutcomeRetryable)
		if !errors.Is(err, paymentdomain.ErrRetryable) {
			err = fmt.Errorf("%w: %v", paymentdomain.ErrRetryable, err)
		}
		return err
	}

	// A failed mark only means the next delivery reconciles again, which is a no-op.
	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
		s.log.Warn("payment event mark processed failed",
			zap.String("event_id", event.ProviderEventID),
			zap.Error(err),
		)
	}

	s.webhookMetrics.IncDelivery(provider, outcome)
	s.metrics.RecordPaymentEvent(ctx, provider, event.Type, outcome)
	return nil
}

// record inserts the event into the inbox. fresh is false when a previous
// delivery already stored it.
func (s *Service) record(ctx context.Context, event *paymentdomain.PaymentEvent) (*paymentdomain.EventRecord, bool, error) {
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return record, true, nil
	}

	existing, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.New("payment event vanished after conflict")
	}
	return existing, false, nil
}
