package domain

import (
	"context"
	"net/http"
)

// Adapter is a payment provider integration.
type Adapter interface {
	Provider() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionStatus, error)
	// Verify authenticates the raw webhook body. It must run before Parse.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// Reconciler turns verified payment events into subscription state. It
// returns an outcome label and an error only when the event must be
// redelivered.
type Reconciler interface {
	OnPaymentEvent(ctx context.Context, event *PaymentEvent) (string, error)
}
