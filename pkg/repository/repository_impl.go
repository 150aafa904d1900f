package repository

import (
	"context"

	"github.com/smallbiznis/subscriptiond/pkg/db/option"
	"gorm.io/gorm"
)

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return store[T]{db: db}
}

func (s store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return store[T]{db: tx}
}

func (s store[T]) List(ctx context.Context, opts ...option.QueryOption) ([]T, error) {
	var rows []T
	err := s.scoped(ctx, opts).Find(&rows).Error
	return rows, err
}

func (s store[T]) Count(ctx context.Context, opts ...option.QueryOption) (int64, error) {
	var n int64
	err := s.scoped(ctx, opts).Limit(-1).Offset(-1).Count(&n).Error
	return n, err
}

func (s store[T]) scoped(ctx context.Context, opts []option.QueryOption) *gorm.DB {
	q := s.db.WithContext(ctx).Model(new(T))
	for _, opt := range opts {
		q = opt.Apply(q)
	}
	return q
}
