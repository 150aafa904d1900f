package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const DefaultCurrency = "usd"

// Plan is a purchasable fixed-duration offering. Plans are deactivated,
// never deleted, so historical subscriptions keep their reference.
type Plan struct {
	ID           snowflake.ID                `json:"id" gorm:"primaryKey"`
	Name         string                      `json:"name" gorm:"type:text;not null;uniqueIndex"`
	Slug         string                      `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	Description  string                      `json:"description" gorm:"type:text;not null;default:''"`
	Price        float64                     `json:"price" gorm:"type:numeric(10,2);not null"`
	Currency     string                      `json:"currency" gorm:"type:text;not null;default:usd"`
	DurationDays int                         `json:"duration_days" gorm:"column:duration_days;not null"`
	Features     datatypes.JSONSlice[string] `json:"features" gorm:"type:json;not null"`
	PriceID      *string                     `json:"price_id,omitempty" gorm:"column:price_id;type:text;uniqueIndex"`
	IsActive     bool                        `json:"is_active" gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time                   `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time                   `json:"updated_at" gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

// UnitAmount is the price in the currency's minor unit.
func (p Plan) UnitAmount() int64 {
	return int64(p.Price*100 + 0.5)
}
