package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/auth/repository"
	"github.com/smallbiznis/subscriptiond/internal/clock"
	"github.com/smallbiznis/subscriptiond/internal/config"
	"github.com/smallbiznis/subscriptiond/internal/testutil/dbtest"
	"github.com/smallbiznis/subscriptiond/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, err := New(Params{
		Cfg: config.Config{
			AppName: "subscriptiond",
			Auth: config.AuthConfig{
				JWTSecret:  "test-secret",
				AccessTTL:  15 * time.Minute,
				RefreshTTL: 7 * 24 * time.Hour,
			},
		},
		Log:   zaptest.NewLogger(t),
		Repo:  repository.New(conn),
		GenID: node,
		Clock: fake,
	})
	require.NoError(t, err)
	return svc, fake
}

func register(t *testing.T, svc domain.Service, email string) *domain.AuthResponse {
	t.Helper()
	resp, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:     "Alice",
		Email:    email,
		Password: "correct-password",
	})
	require.NoError(t, err)
	return resp
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(Params{Cfg: config.Config{}})
	assert.Error(t, err)
}

func TestRegisterIssuesTokensAndDefaultsToUserRole(t *testing.T) {
	svc, _ := newTestService(t)

	resp := register(t, svc, "  Alice@Example.com ")
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.Equal(t, domain.RoleUser, resp.User.Role)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(900), resp.ExpiresIn)

	identity, err := svc.Authenticate(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, identity.UserID.String())
	assert.False(t, identity.IsAdmin())
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "alice@example.com")

	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:     "Other",
		Email:    "ALICE@example.com",
		Password: "another-password",
	})
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:     "",
		Email:    "not-an-email",
		Password: "short",
	})
	var verr *validation.Errors
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 3)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "alice@example.com")

	_, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), domain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever-password",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAccessTokenExpires(t *testing.T) {
	svc, fake := newTestService(t)
	resp := register(t, svc, "alice@example.com")

	fake.Advance(16 * time.Minute)
	_, err := svc.Authenticate(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestAuthenticateRejectsRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)
	resp := register(t, svc, "alice@example.com")

	_, err := svc.Authenticate(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, fake := newTestService(t)
	resp := register(t, svc, "alice@example.com")

	fake.Advance(time.Second)
	next, err := svc.Refresh(context.Background(), resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, resp.RefreshToken, next.RefreshToken)

	_, err = svc.Refresh(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.Refresh(context.Background(), next.RefreshToken)
	assert.NoError(t, err)
}

func TestConcurrentRefreshesShareOneRotation(t *testing.T) {
	svc, fake := newTestService(t)
	resp := register(t, svc, "alice@example.com")
	fake.Advance(time.Second)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*domain.AuthResponse, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Refresh(context.Background(), resp.RefreshToken)
		}(i)
	}
	wg.Wait()

	// Callers that miss the shared flight see a rotated token and fail;
	// every caller that succeeds holds the same pair.
	var winner string
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], domain.ErrInvalidToken)
			continue
		}
		if winner == "" {
			winner = results[i].RefreshToken
		}
		assert.Equal(t, winner, results[i].RefreshToken)
	}
	assert.NotEmpty(t, winner)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)
	resp := register(t, svc, "alice@example.com")

	id, err := snowflake.ParseString(resp.User.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(context.Background(), id))

	_, err = svc.Refresh(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	me, err := svc.Me(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", me.Name)
}

func TestListUsersPagesNewestFirst(t *testing.T) {
	svc, fake := newTestService(t)
	first := register(t, svc, "first@example.com")
	fake.Advance(time.Minute)
	second := register(t, svc, "second@example.com")

	resp, err := svc.ListUsers(context.Background(), domain.ListUsersRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Count)
	assert.Equal(t, 1, resp.TotalPages)
	require.Len(t, resp.Users, 2)
	assert.Equal(t, second.User.ID, resp.Users[0].ID)
	assert.Equal(t, first.User.ID, resp.Users[1].ID)
	assert.Equal(t, "second@example.com", resp.Users[0].Email)
}
