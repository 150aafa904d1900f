package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is one provider event in the inbox. The (provider,
// provider_event_id) pair is unique so redeliveries collapse to one row.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:json;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	ProviderStripe = "stripe"

	EventTypeCheckoutCompleted = "checkout.session.completed"
)

// Metadata keys attached to every checkout session.
const (
	MetadataUserID   = "userId"
	MetadataPlanID   = "planId"
	MetadataPlanName = "planName"
)

// PaymentEvent is the provider-neutral form of a verified webhook event.
// Checkout fields are only set for checkout events.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	Type              string
	SessionID         string
	PaymentIntentID   string
	ClientReferenceID string
	PaymentStatus     string
	AmountTotal       int64
	Currency          string
	Metadata          map[string]string
	OccurredAt        time.Time
	RawPayload        []byte
}

// CheckoutRequest describes a one-shot hosted checkout for a single plan.
type CheckoutRequest struct {
	UserID       string
	PlanID       string
	PlanName     string
	Currency     string
	UnitAmount   int64
	DurationDays int
	SuccessURL   string
	CancelURL    string
	// IdempotencyKey is sent to the provider so a retried create returns
	// the same session.
	IdempotencyKey string
}

type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// CheckoutSessionStatus is informational only and never grants access.
type CheckoutSessionStatus struct {
	SessionID         string `json:"session_id"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	ClientReferenceID string `json:"-"`
}
