// Package repository is a generic read-side store for listing screens.
// Writes that must hold an invariant stay in each domain's own repository.
package repository

import (
	"context"

	"github.com/smallbiznis/subscriptiond/pkg/db/option"
	"gorm.io/gorm"
)

type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	// List applies opts in order, paging included.
	List(ctx context.Context, opts ...option.QueryOption) ([]T, error)
	// Count applies opts but ignores any limit or offset among them, so a
	// listing can pass one option slice to both calls.
	Count(ctx context.Context, opts ...option.QueryOption) (int64, error)
}
