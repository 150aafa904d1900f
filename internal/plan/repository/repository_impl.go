package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/plan/domain"
	"gorm.io/gorm"
)

const planColumns = `id, name, slug, description, price, currency, duration_days, features, price_id, is_active, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (`+planColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.Name,
		plan.Slug,
		plan.Description,
		plan.Price,
		plan.Currency,
		plan.DurationDays,
		plan.Features,
		plan.PriceID,
		plan.IsActive,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`UPDATE plans
		 SET name = ?, description = ?, price = ?, duration_days = ?, features = ?, price_id = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		plan.Name,
		plan.Description,
		plan.Price,
		plan.DurationDays,
		plan.Features,
		plan.PriceID,
		plan.IsActive,
		plan.UpdatedAt,
		plan.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByPriceID(ctx context.Context, db *gorm.DB, priceID string) (*domain.Plan, error) {
	return r.findOne(ctx, db, `price_id = ?`, strings.TrimSpace(priceID))
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Plan, error) {
	return r.findOne(ctx, db, `slug = ?`, strings.ToLower(strings.TrimSpace(slug)))
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Plan, error) {
	return r.findOne(ctx, db, `LOWER(name) = ?`, strings.ToLower(strings.TrimSpace(name)))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, includeInactive bool) ([]domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if !includeInactive {
		query += ` WHERE is_active = ?`
	}
	query += ` ORDER BY price ASC, name ASC`

	args := []interface{}{}
	if !includeInactive {
		args = append(args, true)
	}

	var items []domain.Plan
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// findOne returns (nil, nil) when no row matches.
func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg interface{}) (*domain.Plan, error) {
	var p domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM plans WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}
