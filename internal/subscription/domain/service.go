package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	"github.com/smallbiznis/subscriptiond/pkg/db/pagination"
)

type Service interface {
	// GetCurrent returns the caller's live subscription with its plan, or
	// nil. Admins always get nil.
	GetCurrent(ctx context.Context, userID snowflake.ID, role authdomain.Role) (*Subscription, error)
	Subscribe(ctx context.Context, userID snowflake.ID, planRef string) (*Subscription, error)
	Cancel(ctx context.Context, req CancelRequest) (*Subscription, error)
	Upgrade(ctx context.Context, userID snowflake.ID, newPlanRef string) (*Subscription, error)
	// Activate is the single write path that creates subscriptions.
	Activate(ctx context.Context, req ActivateRequest) (*ActivateResult, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	HasAccess(ctx context.Context, userID snowflake.ID, role authdomain.Role) (bool, error)
	// SweepLapsed persists the expired status for up to limit lapsed rows
	// and returns how many it flipped.
	SweepLapsed(ctx context.Context, limit int) (int, error)
}

type Source string

const (
	SourceManual  Source = "manual"
	SourcePayment Source = "payment"
	SourceUpgrade Source = "upgrade"
)

type ActivateRequest struct {
	UserID    snowflake.ID
	Plan      *plandomain.Plan
	PaymentID *string
	Amount    *float64
	Source    Source
	// SamePlanIsNoop turns an existing live subscription to the same plan
	// into a successful no-op instead of ErrAlreadySubscribed.
	SamePlanIsNoop bool
}

type ActivateResult struct {
	Subscription *Subscription
	Created      bool
}

type CancelRequest struct {
	// SubscriptionID is optional; zero targets the user's own active row.
	SubscriptionID snowflake.ID
	RequesterID    snowflake.ID
	RequesterRole  authdomain.Role
}

type ListRequest struct {
	Status string `form:"status"`
	pagination.Pagination
}

type ListResponse struct {
	Subscriptions []AdminView `json:"subscriptions"`
	pagination.PageInfo
}

type AdminView struct {
	ID        string      `json:"id"`
	Status    Status      `json:"status"`
	StartDate string      `json:"start_date"`
	EndDate   string      `json:"end_date"`
	PaymentID *string     `json:"payment_id,omitempty"`
	Amount    *float64    `json:"amount,omitempty"`
	User      UserSummary `json:"user"`
	Plan      PlanSummary `json:"plan"`
	CreatedAt string      `json:"created_at"`
}

type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PlanSummary struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	DurationDays int     `json:"duration_days"`
}
