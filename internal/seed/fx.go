package seed

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/config"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reloadTimeout = 30 * time.Second

var Module = fx.Module("seed",
	fx.Invoke(Register),
)

type Params struct {
	fx.In

	Lc      fx.Lifecycle
	DB      *gorm.DB
	Log     *zap.Logger
	Node    *snowflake.Node
	Cfg     config.Config
	Catalog *config.CatalogHolder
	PlanSvc plandomain.Service
}

// Register seeds the catalog and bootstrap admin on start and re-syncs the
// catalog whenever the catalog file changes.
func Register(p Params) {
	log := p.Log.Named("seed")

	p.Catalog.OnReload(func(catalog config.CatalogConfig) {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		if err := SyncCatalog(ctx, p.PlanSvc, catalog); err != nil {
			log.Error("catalog re-sync failed", zap.Error(err))
			return
		}
		log.Info("catalog re-synced", zap.Int("plans", len(catalog.Plans)))
	})

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return Run(ctx, p, log)
		},
	})
}

// Run performs the one-shot seed used by both serve and the seed command.
func Run(ctx context.Context, p Params, log *zap.Logger) error {
	catalog := p.Catalog.Get()
	if err := SyncCatalog(ctx, p.PlanSvc, catalog); err != nil {
		return err
	}

	created, err := EnsureAdmin(ctx, p.DB, p.Node, p.Cfg.Bootstrap)
	if err != nil {
		return err
	}
	if created {
		log.Info("bootstrap admin created", zap.String("email", p.Cfg.Bootstrap.AdminEmail))
	}
	return nil
}
