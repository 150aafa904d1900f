package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/testutil/dbtest"
	"github.com/smallbiznis/subscriptiond/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository(t *testing.T) {
	repo := New(dbtest.Open(t))
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	user := &domain.User{ID: 1, Name: "Alice", Email: "alice@example.com", PasswordHash: "x", Role: domain.RoleUser, CreatedAt: at, UpdatedAt: at}
	require.NoError(t, repo.Create(ctx, user))

	dup := *user
	dup.ID = 2
	assert.ErrorIs(t, repo.Create(ctx, &dup), domain.ErrUserExists)

	found, err := repo.FindByEmail(ctx, "  ALICE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repo.FindByID(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.SetRefreshHash(ctx, 99, nil, at), domain.ErrUserNotFound)

	first := "hash-1"
	require.NoError(t, repo.SetRefreshHash(ctx, user.ID, &first, at))

	swapped, err := repo.SwapRefreshHash(ctx, user.ID, "hash-1", "hash-2", at)
	require.NoError(t, err)
	assert.True(t, swapped)

	// the old hash is gone, so a second rotation of it loses
	swapped, err = repo.SwapRefreshHash(ctx, user.ID, "hash-1", "hash-3", at)
	require.NoError(t, err)
	assert.False(t, swapped)

	found, err = repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, found.RefreshTokenHash)
	assert.Equal(t, "hash-2", *found.RefreshTokenHash)

	require.NoError(t, repo.SetPasswordHash(ctx, user.ID, "rehashed", at.Add(time.Hour)))
	found, err = repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "rehashed", found.PasswordHash)
	assert.Equal(t, "hash-2", *found.RefreshTokenHash)
}

func TestListUsersNewestFirst(t *testing.T) {
	repo := New(dbtest.Open(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Create(ctx, &domain.User{
			ID: snowflake.ID(i), Name: "user", Email: fmt.Sprintf("u%d@example.com", i),
			PasswordHash: "x", Role: domain.RoleUser, CreatedAt: at, UpdatedAt: at,
		}))
	}

	users, count, err := repo.List(ctx, pagination.Pagination{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	require.Len(t, users, 2)
	assert.Equal(t, snowflake.ID(3), users[0].ID)
	assert.Equal(t, snowflake.ID(2), users[1].ID)

	users, _, err = repo.List(ctx, pagination.Pagination{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, snowflake.ID(1), users[0].ID)
}
