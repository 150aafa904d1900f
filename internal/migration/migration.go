package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	paymentdomain "github.com/smallbiznis/subscriptiond/internal/payment/domain"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// ActiveIndexSQL is the partial unique index that backs the one active
// subscription per user rule.
const ActiveIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_user_active
	ON subscriptions (user_id) WHERE status = 'active'`

// Run brings the schema up to date. Postgres uses the versioned SQL
// migrations; other dialects get a gorm AutoMigrate of the same models.
func Run(conn *gorm.DB, dbType string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "postgres", "postgresql", "":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	default:
		return AutoMigrate(conn)
	}
}

// RunMigrations applies the embedded SQL migrations to a Postgres database.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the gorm models. MySQL has no partial
// indexes, so there the active rule rests on the user row lock alone.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&authdomain.User{},
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.EventRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if conn.Dialector.Name() == "mysql" {
		return nil
	}
	if err := conn.Exec(ActiveIndexSQL).Error; err != nil {
		return fmt.Errorf("create active index: %w", err)
	}
	return nil
}
