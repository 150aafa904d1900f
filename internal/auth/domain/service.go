package domain

import (
	"context"

	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/pkg/db/pagination"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error)
	Logout(ctx context.Context, userID snowflake.ID) error
	Authenticate(ctx context.Context, accessToken string) (*Identity, error)
	Me(ctx context.Context, userID snowflake.ID) (*UserResponse, error)
	ListUsers(ctx context.Context, req ListUsersRequest) (*ListUsersResponse, error)
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthResponse struct {
	User UserResponse `json:"user"`
	TokenPair
}

type ListUsersRequest struct {
	pagination.Pagination
}

// AdminUserView never carries credential material.
type AdminUserView struct {
	UserResponse
	CreatedAt time.Time `json:"created_at"`
}

type ListUsersResponse struct {
	Users []AdminUserView `json:"users"`
	pagination.PageInfo
}
