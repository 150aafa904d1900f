// Package domain contains the subscription model and its lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// Subscription grants a user a plan's benefits between StartDate and EndDate.
// Rows are never deleted.
type Subscription struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID      snowflake.ID `json:"user_id" gorm:"not null;index"`
	PlanID      snowflake.ID `json:"plan_id" gorm:"not null;index"`
	StartDate   time.Time    `json:"start_date" gorm:"not null"`
	EndDate     time.Time    `json:"end_date" gorm:"not null;index"`
	Status      Status       `json:"status" gorm:"type:text;not null"`
	PaymentID   *string      `json:"payment_id,omitempty" gorm:"column:payment_id;type:text"`
	Amount      *float64     `json:"amount,omitempty" gorm:"type:numeric(10,2)"`
	CancelledAt *time.Time   `json:"cancelled_at,omitempty" gorm:"column:cancelled_at"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`

	Plan *plandomain.Plan `json:"plan,omitempty" gorm:"-"`
}

func (Subscription) TableName() string { return "subscriptions" }

// IsLive reports whether the row grants access at now. A row past its end
// date is expired even before the stored status catches up.
func (s Subscription) IsLive(now time.Time) bool {
	return s.Status == StatusActive && !s.EndDate.Before(now)
}

// EffectiveStatus is the status a reader should see at now.
func (s Subscription) EffectiveStatus(now time.Time) Status {
	if s.Status == StatusActive && s.EndDate.Before(now) {
		return StatusExpired
	}
	return s.Status
}

// EndDateFor returns start plus the plan duration in whole days.
func EndDateFor(start time.Time, durationDays int) time.Time {
	return start.AddDate(0, 0, durationDays)
}
