package seed

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/auth/password"
	"github.com/smallbiznis/subscriptiond/internal/clock"
	"github.com/smallbiznis/subscriptiond/internal/config"
	planrepo "github.com/smallbiznis/subscriptiond/internal/plan/repository"
	planservice "github.com/smallbiznis/subscriptiond/internal/plan/service"
	"github.com/smallbiznis/subscriptiond/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSyncCatalogIsIdempotentAndUpdates(t *testing.T) {
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	plans := planservice.New(planservice.Params{
		DB: conn, Log: zaptest.NewLogger(t), GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), Repo: planrepo.Provide(),
	})
	ctx := context.Background()

	catalog := config.DefaultCatalogConfig()
	require.NoError(t, SyncCatalog(ctx, plans, catalog))
	require.NoError(t, SyncCatalog(ctx, plans, catalog))

	all, err := plans.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "Starter", all[0].Name)

	catalog.Plans[0].Price = 12.5
	require.NoError(t, SyncCatalog(ctx, plans, catalog))
	starter, err := plans.Get(ctx, "starter")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, starter.Price, 0.001)

	assert.Error(t, SyncCatalog(ctx, plans, config.CatalogConfig{}))
}

func TestEnsureAdmin(t *testing.T) {
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	ctx := context.Background()

	created, err := EnsureAdmin(ctx, conn, node, config.BootstrapConfig{})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = EnsureAdmin(ctx, conn, node, config.BootstrapConfig{AdminEmail: "root@example.com", AdminPassword: "short"})
	assert.Error(t, err)

	cfg := config.BootstrapConfig{AdminEmail: " Root@Example.com ", AdminPassword: "correct-horse"}
	created, err = EnsureAdmin(ctx, conn, node, cfg)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureAdmin(ctx, conn, node, cfg)
	require.NoError(t, err)
	assert.False(t, created)

	var admin authdomain.User
	require.NoError(t, conn.Where("email = ?", "root@example.com").First(&admin).Error)
	assert.Equal(t, authdomain.RoleAdmin, admin.Role)
	assert.True(t, password.Verify("correct-horse", admin.PasswordHash))
}

func TestEnsureAdminPromotesExistingUser(t *testing.T) {
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	require.NoError(t, conn.Create(&authdomain.User{
		ID: node.Generate(), Name: "Ops", Email: "ops@example.com", PasswordHash: "x", Role: authdomain.RoleUser,
	}).Error)

	created, err := EnsureAdmin(context.Background(), conn, node, config.BootstrapConfig{AdminEmail: "ops@example.com"})
	require.NoError(t, err)
	assert.False(t, created)

	var user authdomain.User
	require.NoError(t, conn.Where("email = ?", "ops@example.com").First(&user).Error)
	assert.Equal(t, authdomain.RoleAdmin, user.Role)
}
