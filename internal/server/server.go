package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/subscriptiond/internal/auth"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/authorization"
	"github.com/smallbiznis/subscriptiond/internal/config"
	"github.com/smallbiznis/subscriptiond/internal/kv"
	"github.com/smallbiznis/subscriptiond/internal/observability"
	obsmiddleware "github.com/smallbiznis/subscriptiond/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/subscriptiond/internal/observability/metrics"
	obstracing "github.com/smallbiznis/subscriptiond/internal/observability/tracing"
	"github.com/smallbiznis/subscriptiond/internal/payment"
	paymentdomain "github.com/smallbiznis/subscriptiond/internal/payment/domain"
	"github.com/smallbiznis/subscriptiond/internal/plan"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	"github.com/smallbiznis/subscriptiond/internal/ratelimit"
	"github.com/smallbiznis/subscriptiond/internal/reconciliation"
	"github.com/smallbiznis/subscriptiond/internal/subscription"
	"github.com/smallbiznis/subscriptiond/internal/subscription/changefeed"
	subscriptiondomain "github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	kv.Module,
	ratelimit.Module,
	authorization.Module,
	auth.Module,
	plan.Module,
	subscription.Module,
	payment.Module,
	reconciliation.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

// run binds the listener during OnStart so a taken port fails startup
// instead of killing the process later.
func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	// Cancelling base ends the long-lived change streams so Shutdown does
	// not wait on them.
	base, stopStreams := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	log = log.Named("http")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopStreams()
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	authsvc    authdomain.Service
	authzSvc   authorization.Service
	planSvc    plandomain.Service
	subSvc     subscriptiondomain.Service
	gateway    paymentdomain.Gateway
	webhookSvc paymentdomain.WebhookService
	changes    *changefeed.Hub
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Authsvc    authdomain.Service
	AuthzSvc   authorization.Service
	PlanSvc    plandomain.Service
	SubSvc     subscriptiondomain.Service
	Gateway    paymentdomain.Gateway
	WebhookSvc paymentdomain.WebhookService
	Changes    *changefeed.Hub `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http"),
		authsvc:    p.Authsvc,
		authzSvc:   p.AuthzSvc,
		planSvc:    p.PlanSvc,
		subSvc:     p.SubSvc,
		gateway:    p.Gateway,
		webhookSvc: p.WebhookSvc,
		changes:    p.Changes,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/v1/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.POST("/refresh-token", s.RefreshToken)
	auth.GET("/me", s.AuthRequired(), s.Me)
	auth.POST("/logout", s.AuthRequired(), s.Logout)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Plans --------
	api.GET("/plans", s.ListPlans)
	api.GET("/plans/:id", s.GetPlan)

	// -------- Checkout --------
	api.POST("/checkout-sessions", s.AuthRequired(), s.RequirePermission(authorization.ObjectCheckout, authorization.ActionCheckoutCreate), s.CreateCheckoutSession)
	api.GET("/checkout-sessions/:id", s.AuthRequired(), s.RequirePermission(authorization.ObjectCheckout, authorization.ActionCheckoutCreate), s.GetCheckoutSession)

	// -------- Payment Webhooks --------
	// Signature verified by the provider adapter; no bearer auth.
	api.POST("/webhooks/:provider", s.HandlePaymentWebhook)

	// -------- Subscriptions --------
	subs := api.Group("/subscriptions", s.AuthRequired())
	{
		subs.GET("/me", s.RequirePermission(authorization.ObjectSubscription, authorization.ActionSubscriptionViewOwn), s.GetCurrentSubscription)
		subs.GET("/me/events", s.RequirePermission(authorization.ObjectSubscription, authorization.ActionSubscriptionViewOwn), s.StreamSubscriptionEvents)
		subs.GET("/me/ws", s.RequirePermission(authorization.ObjectSubscription, authorization.ActionSubscriptionViewOwn), s.SubscriptionEventsSocket)
		subs.POST("/:planId/subscribe", s.RequirePermission(authorization.ObjectSubscription, authorization.ActionSubscriptionPurchase), s.Subscribe)
		subs.POST("/cancel", s.RequirePermission(authorization.ObjectSubscription, authorization.ActionSubscriptionCancelOwn), s.CancelSubscription)
		subs.POST("/upgrade", s.RequirePermission(authorization.ObjectSubscription, authorization.ActionSubscriptionPurchase), s.UpgradeSubscription)
	}

	// -------- Content --------
	api.GET("/content/premium",
		s.AuthRequired(),
		s.RequirePermission(authorization.ObjectContent, authorization.ActionContentPremium),
		s.RequireSubscription(),
		s.PremiumContent,
	)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/v1/admin")

	// --- global middlewares ---
	admin.Use(s.AuthRequired())

	admin.GET("/subscriptions", s.RequirePermission(authorization.ObjectSubscription, authorization.ActionSubscriptionList), s.ListSubscriptions)
	admin.GET("/users", s.RequirePermission(authorization.ObjectUser, authorization.ActionUserList), s.ListUsers)

	admin.GET("/plans", s.RequirePermission(authorization.ObjectPlan, authorization.ActionPlanManage), s.AdminListPlans)
	admin.POST("/plans", s.RequirePermission(authorization.ObjectPlan, authorization.ActionPlanManage), s.CreatePlan)
	admin.PUT("/plans/:id", s.RequirePermission(authorization.ObjectPlan, authorization.ActionPlanManage), s.UpdatePlan)
	admin.DELETE("/plans/:id", s.RequirePermission(authorization.ObjectPlan, authorization.ActionPlanManage), s.DeactivatePlan)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
