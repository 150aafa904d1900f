package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/auth/password"
	"github.com/smallbiznis/subscriptiond/internal/clock"
	"github.com/smallbiznis/subscriptiond/internal/config"
	"github.com/smallbiznis/subscriptiond/pkg/db/pagination"
	"github.com/smallbiznis/subscriptiond/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	log    *zap.Logger
	repo   domain.Repository
	genID  *snowflake.Node
	clock  clock.Clock
	tokens *tokenIssuer

	// refreshes collapses concurrent refreshes of the same token so only
	// one rotation happens and every caller gets the same pair.
	refreshes singleflight.Group
}

func New(p Params) (domain.Service, error) {
	accessSecret := strings.TrimSpace(p.Cfg.Auth.JWTSecret)
	if accessSecret == "" {
		return nil, errors.New("auth: JWT_SECRET must be set")
	}
	refreshSecret := strings.TrimSpace(p.Cfg.Auth.JWTRefreshSecret)
	if refreshSecret == "" {
		refreshSecret = accessSecret
	}

	return &Service{
		log:   p.Log.Named("auth.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
		tokens: &tokenIssuer{
			accessSecret:  []byte(accessSecret),
			refreshSecret: []byte(refreshSecret),
			accessTTL:     p.Cfg.Auth.AccessTTL,
			refreshTTL:    p.Cfg.Auth.RefreshTTL,
			issuer:        p.Cfg.AppName,
			clock:         p.Clock,
		},
	}, nil
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:           s.genID.Generate(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hashed,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return s.startSession(ctx, user, "")
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.Struct(req); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if password.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user, req.Password)
	}

	return s.startSession(ctx, user, "")
}

// Refresh rotates the refresh token. Only the most recently issued refresh
// token is accepted; reuse of an older one fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, domain.ErrInvalidToken
	}

	key := hashToken(refreshToken)
	v, err, _ := s.refreshes.Do(key, func() (interface{}, error) {
		return s.rotate(ctx, refreshToken, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.AuthResponse), nil
}

func (s *Service) rotate(ctx context.Context, refreshToken, hash string) (*domain.AuthResponse, error) {
	userID, _, err := s.tokens.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if user.RefreshTokenHash == nil || *user.RefreshTokenHash != hash {
		s.log.Warn("refresh token rejected", zap.String("user_id", user.ID.String()))
		return nil, domain.ErrInvalidToken
	}

	return s.startSession(ctx, user, hash)
}

// upgradeHash re-derives a hash made under older cost parameters. Failure
// only costs another attempt on the next login.
func (s *Service) upgradeHash(ctx context.Context, user *domain.User, plain string) {
	hashed, err := password.Hash(plain)
	if err == nil {
		err = s.repo.SetPasswordHash(ctx, user.ID, hashed, s.clock.Now())
	}
	if err != nil {
		s.log.Warn("password rehash failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}
	user.PasswordHash = hashed
}

func (s *Service) Logout(ctx context.Context, userID snowflake.ID) error {
	err := s.repo.SetRefreshHash(ctx, userID, nil, s.clock.Now())
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil
	}
	return err
}

// Authenticate verifies an access token and returns the caller identity.
// The role is read from storage so demotions apply before token expiry.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*domain.Identity, error) {
	userID, _, err := s.tokens.parse(accessToken, tokenTypeAccess)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}

	return &domain.Identity{UserID: user.ID, Role: user.Role}, nil
}

func (s *Service) Me(ctx context.Context, userID snowflake.ID) (*domain.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

func (s *Service) ListUsers(ctx context.Context, req domain.ListUsersRequest) (*domain.ListUsersResponse, error) {
	users, count, err := s.repo.List(ctx, req.Pagination)
	if err != nil {
		return nil, err
	}

	views := make([]domain.AdminUserView, 0, len(users))
	for i := range users {
		views = append(views, domain.AdminUserView{
			UserResponse: toUserResponse(&users[i]),
			CreatedAt:    users[i].CreatedAt,
		})
	}
	return &domain.ListUsersResponse{
		Users:    views,
		PageInfo: pagination.BuildPageInfo(req.Pagination, count),
	}, nil
}

// startSession issues a token pair. With a non-empty prevHash the new
// refresh hash replaces it only if it is still the stored one, so two
// rotations of the same token cannot both win.
func (s *Service) startSession(ctx context.Context, user *domain.User, prevHash string) (*domain.AuthResponse, error) {
	pair, err := s.tokens.issue(user)
	if err != nil {
		return nil, err
	}

	hash := hashToken(pair.RefreshToken)
	now := s.clock.Now()
	if prevHash == "" {
		if err := s.repo.SetRefreshHash(ctx, user.ID, &hash, now); err != nil {
			return nil, err
		}
	} else {
		swapped, err := s.repo.SwapRefreshHash(ctx, user.ID, prevHash, hash, now)
		if err != nil {
			return nil, err
		}
		if !swapped {
			return nil, domain.ErrInvalidToken
		}
	}
	user.RefreshTokenHash = &hash

	return &domain.AuthResponse{
		User:      toUserResponse(user),
		TokenPair: pair,
	}, nil
}

func toUserResponse(user *domain.User) domain.UserResponse {
	return domain.UserResponse{
		ID:    user.ID.String(),
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}
}
