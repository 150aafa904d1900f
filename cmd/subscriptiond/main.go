package main

import (
	"context"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/clock"
	"github.com/smallbiznis/subscriptiond/internal/config"
	"github.com/smallbiznis/subscriptiond/internal/migration"
	"github.com/smallbiznis/subscriptiond/internal/observability"
	"github.com/smallbiznis/subscriptiond/internal/plan"
	"github.com/smallbiznis/subscriptiond/internal/scheduler"
	"github.com/smallbiznis/subscriptiond/internal/seed"
	"github.com/smallbiznis/subscriptiond/internal/server"
	"github.com/smallbiznis/subscriptiond/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const oneShotTimeout = 2 * time.Minute

func main() {
	rootCmd := &cobra.Command{
		Use:          "subscriptiond",
		Short:        "Subscription management API with Stripe checkout",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSeedCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				// Core Infrastructure
				core(),
				clock.Module,
				migration.Module,
				server.Module,
				seed.Module,
				scheduler.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The migrations module applies the schema while the graph is built.
			return runOnce(cmd.Context(), fx.New(core(), migration.Module))
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Sync the plan catalog and bootstrap admin, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), fx.New(
				core(),
				clock.Module,
				migration.Module,
				plan.Module,
				seed.Module,
			))
		},
	}
}

func core() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

// runOnce starts the app so OnStart hooks run, then stops it.
func runOnce(parent context.Context, app *fx.App) error {
	if err := app.Err(); err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, oneShotTimeout)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(ctx)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
