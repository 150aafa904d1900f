package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanSeed describes a plan the catalog file wants to exist.
type PlanSeed struct {
	Name         string   `mapstructure:"name"`
	Slug         string   `mapstructure:"slug"`
	Description  string   `mapstructure:"description"`
	Price        float64  `mapstructure:"price"`
	Currency     string   `mapstructure:"currency"`
	DurationDays int      `mapstructure:"durationDays"`
	Features     []string `mapstructure:"features"`
	PriceID      string   `mapstructure:"priceId"`
}

type CatalogConfig struct {
	Plans []PlanSeed `mapstructure:"plans"`
}

func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Plans: []PlanSeed{
			{
				Name:         "Starter",
				Description:  "Perfect for individuals getting started",
				Price:        9.99,
				Currency:     "usd",
				DurationDays: 30,
				Features:     []string{"Access to basic content", "Email support", "1 user account", "5GB storage"},
			},
			{
				Name:         "Professional",
				Description:  "Best for professionals and small teams",
				Price:        29.99,
				Currency:     "usd",
				DurationDays: 30,
				Features:     []string{"Access to all content", "Priority email support", "5 user accounts", "50GB storage", "Advanced analytics"},
			},
			{
				Name:         "Enterprise",
				Description:  "For large organizations with advanced needs",
				Price:        99.99,
				Currency:     "usd",
				DurationDays: 30,
				Features:     []string{"Access to all content", "24/7 phone and email support", "Unlimited user accounts", "500GB storage", "Advanced analytics", "Custom integrations", "Dedicated account manager"},
			},
			{
				Name:         "Annual Pro",
				Description:  "Professional plan billed annually",
				Price:        299.99,
				Currency:     "usd",
				DurationDays: 365,
				Features:     []string{"Access to all content", "Priority email support", "5 user accounts", "50GB storage", "Advanced analytics", "2 months free"},
			},
		},
	}
}

// CatalogHolder keeps the latest valid catalog file contents and notifies
// listeners when the file changes on disk.
type CatalogHolder struct {
	current atomic.Value // holds CatalogConfig

	mu        sync.Mutex
	listeners []func(CatalogConfig)
}

func NewCatalogHolder(log *zap.Logger) (*CatalogHolder, error) {
	log = log.Named("config.catalog")

	v := viper.New()
	v.SetConfigName("catalog")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/subscriptiond")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SUBSCRIPTIOND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &CatalogHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		holder.current.Store(DefaultCatalogConfig())
		log.Info("catalog file not found, using built-in plans")
		return holder, nil
	}

	cfg, err := decodeCatalog(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeCatalog(v)
		if err != nil {
			log.Warn("catalog reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("catalog reloaded", zap.String("file", e.Name), zap.Int("plans", len(updated.Plans)))
		holder.notify(updated)
	})

	return holder, nil
}

// NewStaticCatalogHolder returns a holder that never reloads.
func NewStaticCatalogHolder(cfg CatalogConfig) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *CatalogHolder) Get() CatalogConfig {
	return h.current.Load().(CatalogConfig)
}

// OnReload registers fn to run after every successful reload.
func (h *CatalogHolder) OnReload(fn func(CatalogConfig)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func (h *CatalogHolder) notify(cfg CatalogConfig) {
	h.mu.Lock()
	listeners := append([]func(CatalogConfig){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

func decodeCatalog(v *viper.Viper) (CatalogConfig, error) {
	var cfg CatalogConfig
	if err := v.UnmarshalKey("catalog", &cfg); err != nil {
		return CatalogConfig{}, err
	}
	if err := ValidateCatalogConfig(cfg); err != nil {
		return CatalogConfig{}, err
	}
	return cfg, nil
}

func ValidateCatalogConfig(cfg CatalogConfig) error {
	if len(cfg.Plans) == 0 {
		return errors.New("catalog.plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	for i, p := range cfg.Plans {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("catalog.plans[%d].name is required", i)
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("catalog.plans[%d].name %q is duplicated", i, name)
		}
		seen[key] = struct{}{}
		if p.Price < 0 {
			return fmt.Errorf("catalog.plans[%d].price must not be negative", i)
		}
		if p.DurationDays < 1 {
			return fmt.Errorf("catalog.plans[%d].durationDays must be at least 1", i)
		}
		if len(p.Features) == 0 {
			return fmt.Errorf("catalog.plans[%d].features cannot be empty", i)
		}
	}
	return nil
}
