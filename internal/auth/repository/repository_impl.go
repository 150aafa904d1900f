package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/pkg/db"
	"github.com/smallbiznis/subscriptiond/pkg/db/option"
	"github.com/smallbiznis/subscriptiond/pkg/db/pagination"
	"github.com/smallbiznis/subscriptiond/pkg/repository"
	"gorm.io/gorm"
)

type userRepo struct {
	db    *gorm.DB
	store repository.Repository[domain.User]
}

func New(conn *gorm.DB) domain.Repository {
	return &userRepo{db: conn, store: repository.ProvideStore[domain.User](conn)}
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrUserExists
	}
	return err
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepo) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *userRepo) findOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	var users []domain.User
	if err := r.db.WithContext(ctx).Where(where, arg).Limit(1).Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return &users[0], nil
}

func (r *userRepo) SetPasswordHash(ctx context.Context, id snowflake.ID, hash string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Updates(map[string]any{"password_hash": hash, "updated_at": at}).Error
}

func (r *userRepo) SetRefreshHash(ctx context.Context, id snowflake.ID, hash *string, at time.Time) error {
	res := r.writeSession(ctx, hash, at, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepo) SwapRefreshHash(ctx context.Context, id snowflake.ID, expected, next string, at time.Time) (bool, error) {
	res := r.writeSession(ctx, &next, at, "id = ? AND refresh_token_hash = ?", id, expected)
	return res.RowsAffected == 1, res.Error
}

func (r *userRepo) writeSession(ctx context.Context, hash *string, at time.Time, where string, args ...any) *gorm.DB {
	return r.db.WithContext(ctx).Model(&domain.User{}).Where(where, args...).
		Updates(map[string]any{"refresh_token_hash": hash, "updated_at": at})
}

func (r *userRepo) List(ctx context.Context, page pagination.Pagination) ([]domain.User, int64, error) {
	page = page.Normalize()
	count, err := r.store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	users, err := r.store.List(ctx,
		option.WithSortBy("created_at", true, "created_at"),
		option.WithSortBy("id", true, "id"),
		option.WithLimit(page.Limit),
		option.WithOffset(page.Offset()),
	)
	if err != nil {
		return nil, 0, err
	}
	return users, count, nil
}
