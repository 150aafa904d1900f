package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// LockUser takes the row lock that serializes all subscription writes
	// for one user. It reports false when the user does not exist.
	LockUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
	// ExpireLapsed flips active rows past their end date to expired.
	ExpireLapsed(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (int64, error)
	// FindLapsed locks up to limit active rows whose end date has passed,
	// skipping rows another sweeper holds.
	FindLapsed(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
	MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error)
	FindLive(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (*Subscription, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
	ListDetailed(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]AdminRow, error)
}

// ListFilter narrows the admin listing. An empty Status matches everything.
type ListFilter struct {
	Status Status
	Now    time.Time
}

// AdminRow is a subscription joined with its owner and plan.
type AdminRow struct {
	Subscription
	UserName     string  `gorm:"column:user_name"`
	UserEmail    string  `gorm:"column:user_email"`
	PlanName     string  `gorm:"column:plan_name"`
	PlanPrice    float64 `gorm:"column:plan_price"`
	PlanDuration int     `gorm:"column:plan_duration_days"`
}
