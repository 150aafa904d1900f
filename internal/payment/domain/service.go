package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// Gateway creates provider checkout sessions for plans.
type Gateway interface {
	CreateSession(ctx context.Context, userID snowflake.ID, planRef string) (*CheckoutSession, error)
	SessionStatus(ctx context.Context, userID snowflake.ID, sessionID string) (*CheckoutSessionStatus, error)
}

// WebhookService is the boundary for provider callbacks.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
