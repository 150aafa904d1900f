package domain

import "context"

type Service interface {
	// ListActive returns purchasable plans, cheapest first.
	ListActive(ctx context.Context) ([]Plan, error)
	// Get looks a plan up by id, then price id, then slug.
	Get(ctx context.Context, ref string) (*Plan, error)
	// Resolve is Get restricted to active plans.
	Resolve(ctx context.Context, ref string) (*Plan, error)

	List(ctx context.Context, includeInactive bool) ([]Plan, error)
	Create(ctx context.Context, req CreateRequest) (*Plan, error)
	Update(ctx context.Context, ref string, req UpdateRequest) (*Plan, error)
	Deactivate(ctx context.Context, ref string) (*Plan, error)
	// Sync upserts plans by name. Plans missing from the input are left alone.
	Sync(ctx context.Context, plans []CreateRequest) error
}

type CreateRequest struct {
	Name         string   `json:"name" validate:"required,max=120"`
	Slug         string   `json:"slug" validate:"omitempty,max=120"`
	Description  string   `json:"description" validate:"max=2000"`
	Price        float64  `json:"price" validate:"gte=0"`
	Currency     string   `json:"currency" validate:"omitempty,len=3"`
	DurationDays int      `json:"duration_days" validate:"required,min=1"`
	Features     []string `json:"features" validate:"required,min=1,dive,required"`
	PriceID      string   `json:"price_id" validate:"omitempty,max=255"`
}

type UpdateRequest struct {
	Name         *string   `json:"name" validate:"omitempty,min=1,max=120"`
	Description  *string   `json:"description" validate:"omitempty,max=2000"`
	Price        *float64  `json:"price" validate:"omitempty,gte=0"`
	DurationDays *int      `json:"duration_days" validate:"omitempty,min=1"`
	Features     *[]string `json:"features" validate:"omitempty,min=1,dive,required"`
	PriceID      *string   `json:"price_id" validate:"omitempty,max=255"`
	IsActive     *bool     `json:"is_active"`
}
