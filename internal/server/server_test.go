package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	authrepo "github.com/smallbiznis/subscriptiond/internal/auth/repository"
	authservice "github.com/smallbiznis/subscriptiond/internal/auth/service"
	"github.com/smallbiznis/subscriptiond/internal/authorization"
	"github.com/smallbiznis/subscriptiond/internal/clock"
	"github.com/smallbiznis/subscriptiond/internal/config"
	"github.com/smallbiznis/subscriptiond/internal/observability"
	paymentdomain "github.com/smallbiznis/subscriptiond/internal/payment/domain"
	"github.com/smallbiznis/subscriptiond/internal/payment/gateway"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	planrepo "github.com/smallbiznis/subscriptiond/internal/plan/repository"
	planservice "github.com/smallbiznis/subscriptiond/internal/plan/service"
	"github.com/smallbiznis/subscriptiond/internal/subscription/changefeed"
	subscriptiondomain "github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/subscriptiond/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/subscriptiond/internal/subscription/service"
	"github.com/smallbiznis/subscriptiond/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGateway struct {
	err     error
	userID  snowflake.ID
	planRef string
}

func (f *fakeGateway) CreateSession(ctx context.Context, userID snowflake.ID, planRef string) (*paymentdomain.CheckoutSession, error) {
	f.userID = userID
	f.planRef = planRef
	if f.err != nil {
		return nil, f.err
	}
	return &paymentdomain.CheckoutSession{SessionID: "cs_test_1", RedirectURL: "https://checkout.example/cs_test_1"}, nil
}

func (f *fakeGateway) SessionStatus(ctx context.Context, userID snowflake.ID, sessionID string) (*paymentdomain.CheckoutSessionStatus, error) {
	if sessionID != "cs_test_1" {
		return nil, paymentdomain.ErrSessionNotFound
	}
	return &paymentdomain.CheckoutSessionStatus{SessionID: sessionID, Status: "complete", PaymentStatus: "paid"}, nil
}

type fakeWebhooks struct {
	err      error
	provider string
	payload  []byte
}

func (f *fakeWebhooks) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	f.provider = provider
	f.payload = payload
	return f.err
}

type fixture struct {
	db       *gorm.DB
	server   *Server
	hub      *changefeed.Hub
	gateway  *fakeGateway
	webhooks *fakeWebhooks
	plan     *plandomain.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	cfg := config.Config{
		AppName:   "subscriptiond",
		ClientURL: "http://localhost:5173",
		Auth: config.AuthConfig{
			JWTSecret:        "access-secret",
			JWTRefreshSecret: "refresh-secret",
			AccessTTL:        time.Hour,
			RefreshTTL:       7 * 24 * time.Hour,
		},
	}

	auth, err := authservice.New(authservice.Params{
		Cfg: cfg, Log: log, Repo: authrepo.New(conn), GenID: node, Clock: fake,
	})
	require.NoError(t, err)

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	hub := changefeed.NewHub()
	plans := planservice.New(planservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Repo: planrepo.Provide(),
	})
	subs := subscriptionservice.New(subscriptionservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Repo: subscriptionrepo.Provide(), PlanSvc: plans, Changes: hub,
	})

	plan, err := plans.Create(context.Background(), plandomain.CreateRequest{
		Name: "Starter", Price: 9.99, DurationDays: 30, Features: []string{"Basic content"},
	})
	require.NoError(t, err)

	gw := &fakeGateway{}
	webhooks := &fakeWebhooks{}
	srv := NewServer(ServerParams{
		Gin:        NewEngine(observability.Config{}, nil),
		Cfg:        cfg,
		Log:        log,
		Authsvc:    auth,
		AuthzSvc:   authz,
		PlanSvc:    plans,
		SubSvc:     subs,
		Gateway:    gw,
		WebhookSvc: webhooks,
		Changes:    hub,
	})

	return &fixture{db: conn, server: srv, hub: hub, gateway: gw, webhooks: webhooks, plan: plan}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()

	var reader *bytes.Reader
	if raw, isBytes := body.([]byte); isBytes {
		reader = bytes.NewReader(raw)
	} else if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

// register creates an account and returns its access token and id.
func (f *fixture) register(t *testing.T, email string) (string, snowflake.ID) {
	t.Helper()
	rec, resp := f.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name": "Test User", "email": email, "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var auth authdomain.AuthResponse
	require.NoError(t, json.Unmarshal(resp.Data, &auth))
	id, err := snowflake.ParseString(auth.User.ID)
	require.NoError(t, err)
	return auth.AccessToken, id
}

func (f *fixture) admin(t *testing.T) string {
	t.Helper()
	token, id := f.register(t, "admin@example.com")
	require.NoError(t, f.db.Model(&authdomain.User{}).Where("id = ?", id).Update("role", authdomain.RoleAdmin).Error)
	return token
}

func TestHealthAndUnknownRoute(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestPlansArePublic(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	var plans []plandomain.Plan
	require.NoError(t, json.Unmarshal(resp.Data, &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, "Starter", plans[0].Name)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/plans/"+f.plan.ID.String(), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/plans/unknown-plan", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "plan_not_found", resp.Code)
}

func TestLoginAndMe(t *testing.T) {
	f := newFixture(t)
	f.register(t, "reader@example.com")

	rec, resp := f.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": "reader@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", resp.Code)

	rec, resp = f.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": "reader@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var auth authdomain.AuthResponse
	require.NoError(t, json.Unmarshal(resp.Data, &auth))

	rec, resp = f.do(t, http.MethodGet, "/api/v1/auth/me", auth.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me authdomain.UserResponse
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.Equal(t, "reader@example.com", me.Email)
	assert.Equal(t, authdomain.RoleUser, me.Role)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name": "Again", "email": "reader@example.com", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/subscriptions/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/subscriptions/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubscriptionLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	token, _ := f.register(t, "buyer@example.com")

	rec, resp := f.do(t, http.MethodGet, "/api/v1/subscriptions/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subscription":null}`, string(resp.Data))

	rec, resp = f.do(t, http.MethodGet, "/api/v1/content/premium", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "requires_subscription", resp.Code)

	path := "/api/v1/subscriptions/" + f.plan.ID.String() + "/subscribe"
	rec, _ = f.do(t, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, resp = f.do(t, http.MethodPost, path, token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_subscribed", resp.Code)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/subscriptions/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current struct {
		Subscription *struct {
			Status string `json:"status"`
			Plan   struct {
				Name string `json:"name"`
			} `json:"plan"`
		} `json:"subscription"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &current))
	require.NotNil(t, current.Subscription)
	assert.Equal(t, "active", current.Subscription.Status)
	assert.Equal(t, "Starter", current.Subscription.Plan.Name)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/content/premium", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/subscriptions/cancel", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = f.do(t, http.MethodPost, "/api/v1/subscriptions/cancel", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/content/premium", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpgradeRequiresNewPlanID(t *testing.T) {
	f := newFixture(t)
	token, _ := f.register(t, "upgrader@example.com")

	rec, resp := f.do(t, http.MethodPost, "/api/v1/subscriptions/upgrade", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", resp.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/subscriptions/upgrade", token, gin.H{"new_plan_id": f.plan.ID.String()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRejectsMalformedSubscriptionID(t *testing.T) {
	f := newFixture(t)
	token, _ := f.register(t, "canceller@example.com")

	rec, resp := f.do(t, http.MethodPost, "/api/v1/subscriptions/cancel", token, gin.H{"subscription_id": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_subscription_id", resp.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)
	userToken, _ := f.register(t, "member@example.com")
	adminToken := f.admin(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/admin/subscriptions", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", resp.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/subscriptions/"+f.plan.ID.String()+"/subscribe", userToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/admin/subscriptions?status=active&page=1&limit=5", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Subscriptions []json.RawMessage `json:"subscriptions"`
		Count         int64             `json:"count"`
		CurrentPage   int               `json:"current_page"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.Len(t, list.Subscriptions, 1)
	assert.EqualValues(t, 1, list.Count)
	assert.Equal(t, 1, list.CurrentPage)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/admin/subscriptions?status=bogus", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Admins are exempt from the subscription gate.
	rec, _ = f.do(t, http.MethodGet, "/api/v1/content/premium", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminListsUsersWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	userToken, userID := f.register(t, "listed@example.com")
	adminToken := f.admin(t)

	rec, _ := f.do(t, http.MethodGet, "/api/v1/admin/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/admin/users?page=1&limit=1", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Users       []map[string]any `json:"users"`
		Count       int64            `json:"count"`
		TotalPages  int              `json:"total_pages"`
		CurrentPage int              `json:"current_page"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.EqualValues(t, 2, page.Count)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
	require.Len(t, page.Users, 1)
	for _, key := range []string{"password", "password_hash", "PasswordHash", "refresh_token_hash", "RefreshTokenHash"} {
		assert.NotContains(t, page.Users[0], key)
	}

	// the admin registered last, so the first user lands on page two
	rec, resp = f.do(t, http.MethodGet, "/api/v1/admin/users?page=2&limit=1", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	require.Len(t, page.Users, 1)
	assert.Equal(t, userID.String(), page.Users[0]["id"])
	assert.Equal(t, "listed@example.com", page.Users[0]["email"])
}

func TestAdminPlanManagement(t *testing.T) {
	f := newFixture(t)
	adminToken := f.admin(t)
	userToken, _ := f.register(t, "viewer@example.com")

	body := gin.H{"name": "Professional", "price": 29.99, "duration_days": 30, "features": []string{"All content"}}
	rec, _ := f.do(t, http.MethodPost, "/api/v1/admin/plans", userToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := f.do(t, http.MethodPost, "/api/v1/admin/plans", adminToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created plandomain.Plan
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	rec, _ = f.do(t, http.MethodPost, "/api/v1/admin/plans", adminToken, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/admin/plans", adminToken, gin.H{"name": "Broken", "duration_days": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPut, "/api/v1/admin/plans/"+created.ID.String(), adminToken, gin.H{"price": 24.99})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/admin/plans/"+created.ID.String(), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, ref := range []string{created.ID.String(), created.Slug} {
		rec, _ = f.do(t, http.MethodGet, "/api/v1/plans/"+ref, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, ref)
	}

	rec, resp = f.do(t, http.MethodGet, "/api/v1/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active []plandomain.Plan
	require.NoError(t, json.Unmarshal(resp.Data, &active))
	assert.Len(t, active, 1)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/admin/plans", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []plandomain.Plan
	require.NoError(t, json.Unmarshal(resp.Data, &all))
	assert.Len(t, all, 2)
}

func TestCheckoutSessionRoutes(t *testing.T) {
	f := newFixture(t)
	token, userID := f.register(t, "checkout@example.com")

	rec, resp := f.do(t, http.MethodPost, "/api/v1/checkout-sessions", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", resp.Code)

	rec, resp = f.do(t, http.MethodPost, "/api/v1/checkout-sessions", token, gin.H{"plan_id": f.plan.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, userID, f.gateway.userID)
	assert.Equal(t, f.plan.ID.String(), f.gateway.planRef)
	var session paymentdomain.CheckoutSession
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	assert.Equal(t, "https://checkout.example/cs_test_1", session.RedirectURL)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/checkout-sessions/cs_test_1", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/v1/checkout-sessions/cs_other", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutErrorsMapToStatus(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"rate limited":      {&gateway.RateLimitError{RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, "rate_limited"},
		"in progress":       {paymentdomain.ErrCheckoutInProgress, http.StatusConflict, "checkout_in_progress"},
		"upstream down":     {paymentdomain.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		"plan not found":    {plandomain.ErrNotFound, http.StatusNotFound, "plan_not_found"},
		"already subscribe": {subscriptiondomain.ErrAlreadySubscribed, http.StatusConflict, "already_subscribed"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			token, _ := f.register(t, "limited@example.com")
			f.gateway.err = tc.err

			rec, resp := f.do(t, http.MethodPost, "/api/v1/checkout-sessions", token, gin.H{"plan_id": "starter"})
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, resp.Code)
			if tc.status == http.StatusTooManyRequests {
				assert.Equal(t, "2", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestWebhookRoute(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	rec, resp := f.do(t, http.MethodPost, "/api/v1/webhooks/stripe", "", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "stripe", f.webhooks.provider)
	assert.Equal(t, payload, f.webhooks.payload)

	f.webhooks.err = paymentdomain.ErrInvalidSignature
	rec, resp = f.do(t, http.MethodPost, "/api/v1/webhooks/stripe", "", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_signature", resp.Code)

	f.webhooks.err = paymentdomain.ErrRetryable
	rec, _ = f.do(t, http.MethodPost, "/api/v1/webhooks/stripe", "", payload)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	f.webhooks.err = nil
	big := append([]byte(`{"pad":"`), bytes.Repeat([]byte("a"), maxWebhookBodyBytes)...)
	big = append(big, []byte(`"}`)...)
	rec, _ = f.do(t, http.MethodPost, "/api/v1/webhooks/stripe", "", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSubscriptionEventStream(t *testing.T) {
	f := newFixture(t)
	token, userID := f.register(t, "watcher@example.com")

	ts := httptest.NewServer(f.server.Engine())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/subscriptions/me/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return f.hub.Listeners(userID.String()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.hub.Publish(ctx, changefeed.Event{
		UserID: userID.String(), SubscriptionID: "42", Status: "active", Reason: changefeed.ReasonActivated,
	})

	reader := bufio.NewReader(res.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event changefeed.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &event))
		assert.Equal(t, "42", event.SubscriptionID)
		assert.Equal(t, changefeed.ReasonActivated, event.Reason)
		break
	}
}

func TestCheckOrigin(t *testing.T) {
	s := &Server{cfg: config.Config{ClientURL: "http://localhost:5173/"}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, s.checkOrigin(req))
}
