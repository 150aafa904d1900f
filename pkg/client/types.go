package client

import (
	"encoding/json"
	"fmt"
	"time"
)

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type AuthResponse struct {
	User User `json:"user"`
	Tokens
}

type Plan struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Slug         string   `json:"slug"`
	Description  string   `json:"description"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency"`
	DurationDays int      `json:"duration_days"`
	Features     []string `json:"features"`
	PriceID      *string  `json:"price_id,omitempty"`
	IsActive     bool     `json:"is_active"`
}

type Subscription struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	PlanID      string     `json:"plan_id"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
	Status      string     `json:"status"`
	PaymentID   *string    `json:"payment_id,omitempty"`
	Amount      *float64   `json:"amount,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	Plan        *Plan      `json:"plan,omitempty"`
}

type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// CheckoutSessionStatus is the provider's view of a session. Status is
// open, complete or expired; PaymentStatus is paid, unpaid or
// no_payment_required.
type CheckoutSessionStatus struct {
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("subscriptiond: %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("subscriptiond: %d %s: %s", e.Status, e.Code, e.Message)
}
