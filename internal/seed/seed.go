package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/auth/password"
	"github.com/smallbiznis/subscriptiond/internal/config"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	"gorm.io/gorm"
)

const defaultAdminName = "Administrator"

// SyncCatalog upserts the configured plans by name.
func SyncCatalog(ctx context.Context, plans plandomain.Service, catalog config.CatalogConfig) error {
	if plans == nil {
		return errors.New("seed plan service is required")
	}
	if err := config.ValidateCatalogConfig(catalog); err != nil {
		return err
	}

	reqs := make([]plandomain.CreateRequest, 0, len(catalog.Plans))
	for _, p := range catalog.Plans {
		reqs = append(reqs, plandomain.CreateRequest{
			Name:         p.Name,
			Slug:         p.Slug,
			Description:  p.Description,
			Price:        p.Price,
			Currency:     p.Currency,
			DurationDays: p.DurationDays,
			Features:     p.Features,
			PriceID:      p.PriceID,
		})
	}
	return plans.Sync(ctx, reqs)
}

// EnsureAdmin creates the bootstrap admin account, or promotes an existing
// account with that email. It does nothing when no email is configured.
func EnsureAdmin(ctx context.Context, db *gorm.DB, node *snowflake.Node, cfg config.BootstrapConfig) (bool, error) {
	if db == nil {
		return false, errors.New("seed database handle is required")
	}
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" {
		return false, nil
	}

	created := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user authdomain.User
		err := tx.WithContext(ctx).Where("email = ?", email).First(&user).Error
		if err == nil {
			if user.Role == authdomain.RoleAdmin {
				return nil
			}
			return tx.WithContext(ctx).Model(&authdomain.User{}).
				Where("id = ?", user.ID).
				Updates(map[string]any{"role": authdomain.RoleAdmin, "updated_at": time.Now().UTC()}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if len(cfg.AdminPassword) < password.MinLength {
			return errors.New("bootstrap admin password is too short")
		}
		hashed, err := password.Hash(cfg.AdminPassword)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		user = authdomain.User{
			ID:           node.Generate(),
			Name:         defaultAdminName,
			Email:        email,
			PasswordHash: hashed,
			Role:         authdomain.RoleAdmin,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
