package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/subscriptiond/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	defaultTimeout    = 10 * time.Second
	signatureHeader   = "Stripe-Signature"
	paymentMethodCard = "card"
)

// Config configures the Stripe adapter. APIURL overrides the API origin and
// is only set against a local test server.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	APIURL        string
	Tolerance     time.Duration
}

type Adapter struct {
	sessions      session.Client
	webhookSecret string
	tolerance     time.Duration
}

func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	backendCfg := &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelError},
	}
	if url := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"); url != "" {
		backendCfg.URL = stripego.String(url)
	}

	return &Adapter{
		sessions: session.Client{
			B:   stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg),
			Key: strings.TrimSpace(cfg.SecretKey),
		},
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		tolerance:     tolerance,
	}
}

func (a *Adapter) Provider() string {
	return paymentdomain.ProviderStripe
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	params := buildCheckoutParams(req)
	params.Context = ctx

	cs, err := a.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrUpstreamUnavailable, err)
	}
	if cs == nil || strings.TrimSpace(cs.URL) == "" {
		return nil, fmt.Errorf("%w: checkout session without url", paymentdomain.ErrUpstreamUnavailable)
	}

	return &paymentdomain.CheckoutSession{
		SessionID:   cs.ID,
		RedirectURL: cs.URL,
	}, nil
}

func (a *Adapter) GetCheckoutSession(ctx context.Context, sessionID string) (*paymentdomain.CheckoutSessionStatus, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, paymentdomain.ErrSessionNotFound
	}

	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := a.sessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, paymentdomain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrUpstreamUnavailable, err)
	}

	return &paymentdomain.CheckoutSessionStatus{
		SessionID:         cs.ID,
		Status:            string(cs.Status),
		PaymentStatus:     string(cs.PaymentStatus),
		ClientReferenceID: cs.ClientReferenceID,
	}, nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" || a.webhookSecret == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, a.webhookSecret, a.tolerance); err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// Parse decodes any verified Stripe event. Checkout fields are filled only
// for checkout.session.completed.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripego.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(string(event.Type)) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	out := &paymentdomain.PaymentEvent{
		Provider:        paymentdomain.ProviderStripe,
		ProviderEventID: event.ID,
		Type:            string(event.Type),
		OccurredAt:      timestamp(event.Created),
		RawPayload:      payload,
	}
	if out.Type != paymentdomain.EventTypeCheckoutCompleted {
		return out, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var cs stripego.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	out.SessionID = cs.ID
	out.ClientReferenceID = strings.TrimSpace(cs.ClientReferenceID)
	out.PaymentStatus = string(cs.PaymentStatus)
	out.AmountTotal = cs.AmountTotal
	out.Currency = strings.ToLower(string(cs.Currency))
	out.Metadata = readMetadata(cs.Metadata)
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	return out, nil
}

func buildCheckoutParams(req paymentdomain.CheckoutRequest) *stripego.CheckoutSessionParams {
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = string(stripego.CurrencyUSD)
	}

	params := &stripego.CheckoutSessionParams{
		Mode:               stripego.String(string(stripego.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripego.StringSlice([]string{paymentMethodCard}),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency: stripego.String(currency),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripego.String(req.PlanName),
					Description: stripego.String(fmt.Sprintf("%d days subscription", req.DurationDays)),
				},
				UnitAmount: stripego.Int64(req.UnitAmount),
			},
			Quantity: stripego.Int64(1),
		}},
		SuccessURL:        stripego.String(req.SuccessURL),
		CancelURL:         stripego.String(req.CancelURL),
		ClientReferenceID: stripego.String(req.UserID),
	}
	params.AddMetadata(paymentdomain.MetadataUserID, req.UserID)
	params.AddMetadata(paymentdomain.MetadataPlanID, req.PlanID)
	params.AddMetadata(paymentdomain.MetadataPlanName, req.PlanName)
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	return params
}

func readMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func timestamp(created int64) time.Time {
	if created > 0 {
		return time.Unix(created, 0).UTC()
	}
	return time.Now().UTC()
}
