package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/clock"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the JWT payload for both token types.
type Claims struct {
	Role domain.Role `json:"role,omitempty"`
	Type string      `json:"type"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	clock         clock.Clock
}

func (t *tokenIssuer) issue(user *domain.User) (domain.TokenPair, error) {
	now := t.clock.Now()

	access := Claims{
		Role: user.Role,
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    t.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(t.accessSecret)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := Claims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    t.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(t.refreshSecret)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(t.accessTTL.Seconds()),
	}, nil
}

// parse validates signature, expiry and token type and returns the subject.
func (t *tokenIssuer) parse(raw, wantType string) (snowflake.ID, *Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil, domain.ErrInvalidToken
	}

	secret := t.accessSecret
	if wantType == tokenTypeRefresh {
		secret = t.refreshSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, nil, domain.ErrUnauthenticated
		}
		return 0, nil, domain.ErrInvalidToken
	}
	if claims.Type != wantType {
		return 0, nil, domain.ErrInvalidToken
	}

	id, err := snowflake.ParseString(claims.Subject)
	if err != nil {
		return 0, nil, domain.ErrInvalidToken
	}
	return id, claims, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
