package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/pkg/db/pagination"
)

// Repository persists users and the hash of each user's single live refresh
// token.
type Repository interface {
	// Create returns ErrUserExists when the email is taken.
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	SetPasswordHash(ctx context.Context, id snowflake.ID, hash string, at time.Time) error
	// SetRefreshHash replaces the stored hash unconditionally. A nil hash
	// revokes the session.
	SetRefreshHash(ctx context.Context, id snowflake.ID, hash *string, at time.Time) error
	// SwapRefreshHash replaces expected with next only if expected is still
	// stored, and reports whether it did.
	SwapRefreshHash(ctx context.Context, id snowflake.ID, expected, next string, at time.Time) (bool, error)
	// List returns one page of users, newest first, and the total count.
	List(ctx context.Context, page pagination.Pagination) ([]User, int64, error)
}
