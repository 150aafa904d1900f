package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPlan         = "plan"
	ObjectSubscription = "subscription"
	ObjectCheckout     = "checkout"
	ObjectContent      = "content"
	ObjectUser         = "user"
)

const (
	ActionPlanView   = "plan.view"
	ActionPlanManage = "plan.manage"

	ActionSubscriptionViewOwn   = "subscription.view_own"
	ActionSubscriptionPurchase  = "subscription.purchase"
	ActionSubscriptionCancelOwn = "subscription.cancel_own"
	ActionSubscriptionCancelAny = "subscription.cancel_any"
	ActionSubscriptionList      = "subscription.list"

	ActionCheckoutCreate = "checkout.create"

	ActionContentPremium = "content.premium"

	ActionUserList = "user.list"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

type grant struct{ object, action string }

// builtinGrants is reconciled into casbin_rule on every boot. Admins also
// inherit every user grant through the role:admin -> role:user link.
var builtinGrants = map[authdomain.Role][]grant{
	authdomain.RoleUser: {
		{ObjectPlan, ActionPlanView},
		{ObjectSubscription, ActionSubscriptionViewOwn},
		{ObjectSubscription, ActionSubscriptionPurchase},
		{ObjectSubscription, ActionSubscriptionCancelOwn},
		{ObjectCheckout, ActionCheckoutCreate},
		{ObjectContent, ActionContentPremium},
	},
	authdomain.RoleAdmin: {
		{ObjectPlan, ActionPlanManage},
		{ObjectSubscription, ActionSubscriptionList},
		{ObjectSubscription, ActionSubscriptionCancelAny},
		{ObjectUser, ActionUserList},
	},
}

// NewEnforcer builds a synced enforcer over the casbin_rule table and makes
// sure the built-in grants are present. Operator-added rows are kept.
func NewEnforcer(conn *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(conn)
	if err != nil {
		return nil, fmt.Errorf("casbin adapter: %w", err)
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	if err := reconcileGrants(enforcer); err != nil {
		return nil, fmt.Errorf("seed policy: %w", err)
	}
	return enforcer, enforcer.BuildRoleLinks()
}

func reconcileGrants(enforcer *casbin.SyncedEnforcer) error {
	for role, grants := range builtinGrants {
		subject := roleSubject(role)
		for _, g := range grants {
			if ok, _ := enforcer.HasPolicy(subject, g.object, g.action); ok {
				continue
			}
			if _, err := enforcer.AddPolicy(subject, g.object, g.action); err != nil {
				return err
			}
		}
	}
	admin, user := roleSubject(authdomain.RoleAdmin), roleSubject(authdomain.RoleUser)
	if ok, _ := enforcer.HasGroupingPolicy(admin, user); ok {
		return nil
	}
	_, err := enforcer.AddGroupingPolicy(admin, user)
	return err
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role authdomain.Role, object string, action string) error {
	if !role.Valid() {
		return ErrInvalidActor
	}
	if object = strings.TrimSpace(object); object == "" {
		return ErrInvalidObject
	}
	if action = strings.TrimSpace(action); action == "" {
		return ErrInvalidAction
	}

	subject := roleSubject(role)
	switch allowed, err := s.enforcer.Enforce(subject, object, action); {
	case err != nil:
		return fmt.Errorf("enforce %s %s/%s: %w", subject, object, action, err)
	case allowed:
		return nil
	}

	logger.WithContext(ctx, s.log).Warn("authorization.denied",
		zap.String("subject", subject),
		zap.String("object", object),
		zap.String("action", action),
	)
	return ErrForbidden
}

func roleSubject(role authdomain.Role) string {
	return "role:" + strings.ToLower(string(role))
}
