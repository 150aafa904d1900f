// Package client is a typed Go client for the subscriptiond REST API.
//
// The client holds an access/refresh token pair. A 401 on an authenticated
// call triggers one refresh and one retry; concurrent callers that hit the
// same expired token share a single refresh.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrNotAuthenticated = errors.New("not_authenticated")
	ErrNoRefreshToken   = errors.New("no_refresh_token")
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.RWMutex
	tokens Tokens

	refreshes singleflight.Group
	onTokens  func(Tokens)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokens seeds a previously stored pair.
func WithTokens(tokens Tokens) Option {
	return func(c *Client) { c.tokens = tokens }
}

// WithTokenListener is called after every login, register or refresh so
// callers can persist the new pair.
func WithTokenListener(fn func(Tokens)) Option {
	return func(c *Client) { c.onTokens = fn }
}

// New builds a client for baseURL, e.g. "https://api.example.com". The
// /api/v1 prefix is added per call.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Tokens() Tokens {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

func (c *Client) setTokens(tokens Tokens) {
	c.mu.Lock()
	c.tokens = tokens
	c.mu.Unlock()
	if c.onTokens != nil {
		c.onTokens(tokens)
	}
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/auth/register", body, &resp, false); err != nil {
		return nil, err
	}
	c.setTokens(resp.Tokens)
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/auth/login", body, &resp, false); err != nil {
		return nil, err
	}
	c.setTokens(resp.Tokens)
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.call(ctx, http.MethodPost, "/auth/logout", nil, nil, true); err != nil {
		return err
	}
	c.setTokens(Tokens{})
	return nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, http.MethodGet, "/auth/me", nil, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// Refresh rotates the token pair now.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx, c.Tokens().RefreshToken)
	return err
}

func (c *Client) Plans(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	if err := c.call(ctx, http.MethodGet, "/plans", nil, &plans, false); err != nil {
		return nil, err
	}
	return plans, nil
}

// Plan accepts a plan id, provider price id or slug.
func (c *Client) Plan(ctx context.Context, ref string) (*Plan, error) {
	var plan Plan
	if err := c.call(ctx, http.MethodGet, "/plans/"+url.PathEscape(ref), nil, &plan, false); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, planID string) (*CheckoutSession, error) {
	var session CheckoutSession
	body := map[string]string{"plan_id": planID}
	if err := c.call(ctx, http.MethodPost, "/checkout-sessions", body, &session, true); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) CheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionStatus, error) {
	var status CheckoutSessionStatus
	if err := c.call(ctx, http.MethodGet, "/checkout-sessions/"+url.PathEscape(sessionID), nil, &status, true); err != nil {
		return nil, err
	}
	return &status, nil
}

// CurrentSubscription returns nil, nil when the caller has no live
// subscription.
func (c *Client) CurrentSubscription(ctx context.Context) (*Subscription, error) {
	var out struct {
		Subscription *Subscription `json:"subscription"`
	}
	if err := c.call(ctx, http.MethodGet, "/subscriptions/me", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Subscription, nil
}

func (c *Client) Subscribe(ctx context.Context, planID string) (*Subscription, error) {
	var sub Subscription
	if err := c.call(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(planID)+"/subscribe", nil, &sub, true); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Cancel cancels subscriptionID, or the caller's own active subscription
// when it is empty.
func (c *Client) Cancel(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	body := map[string]string{}
	if subscriptionID != "" {
		body["subscription_id"] = subscriptionID
	}
	if err := c.call(ctx, http.MethodPost, "/subscriptions/cancel", body, &sub, true); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) Upgrade(ctx context.Context, newPlanID string) (*Subscription, error) {
	var sub Subscription
	body := map[string]string{"new_plan_id": newPlanID}
	if err := c.call(ctx, http.MethodPost, "/subscriptions/upgrade", body, &sub, true); err != nil {
		return nil, err
	}
	return &sub, nil
}

// call performs one request and, for authenticated calls, a single retry
// after refreshing on 401.
func (c *Client) call(ctx context.Context, method, path string, body, out any, authed bool) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = raw
	}

	if !authed {
		return c.do(ctx, method, path, payload, "", out)
	}

	tokens := c.Tokens()
	if tokens.AccessToken == "" {
		return ErrNotAuthenticated
	}
	err := c.do(ctx, method, path, payload, tokens.AccessToken, out)
	if !isUnauthorized(err) || tokens.RefreshToken == "" {
		return err
	}

	fresh, refreshErr := c.refresh(ctx, tokens.RefreshToken)
	if refreshErr != nil {
		return err
	}
	return c.do(ctx, method, path, payload, fresh.AccessToken, out)
}

// refresh is single-flight per refresh token. A caller arriving after the
// rotation finished sees a newer pair and reuses it.
func (c *Client) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, ErrNoRefreshToken
	}
	if current := c.Tokens(); current.RefreshToken != refreshToken && current.AccessToken != "" {
		return current, nil
	}

	v, err, _ := c.refreshes.Do(refreshToken, func() (interface{}, error) {
		if current := c.Tokens(); current.RefreshToken != refreshToken && current.AccessToken != "" {
			return current, nil
		}
		var resp AuthResponse
		body, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
		if err := c.do(ctx, http.MethodPost, "/auth/refresh-token", body, "", &resp); err != nil {
			return Tokens{}, err
		}
		c.setTokens(resp.Tokens)
		return resp.Tokens, nil
	})
	if err != nil {
		return Tokens{}, err
	}
	return v.(Tokens), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, accessToken string, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if res.StatusCode >= 300 {
				return &APIError{Status: res.StatusCode, Code: http.StatusText(res.StatusCode)}
			}
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if res.StatusCode >= 300 || !env.Success {
		return &APIError{Status: res.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// IsCode reports whether err is an API error carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
