package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	cfg := DefaultCatalogConfig()
	assert.NoError(t, ValidateCatalogConfig(cfg))
	assert.Len(t, cfg.Plans, 4)
	assert.Equal(t, 365, cfg.Plans[3].DurationDays)
}

func TestValidateCatalogConfigRejectsBadPlans(t *testing.T) {
	cases := map[string]PlanSeed{
		"missing name":   {Price: 1, DurationDays: 1, Features: []string{"a"}},
		"negative price": {Name: "x", Price: -1, DurationDays: 1, Features: []string{"a"}},
		"zero duration":  {Name: "x", Price: 1, DurationDays: 0, Features: []string{"a"}},
		"no features":    {Name: "x", Price: 1, DurationDays: 1},
	}
	for name, seed := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateCatalogConfig(CatalogConfig{Plans: []PlanSeed{seed}})
			assert.Error(t, err)
		})
	}

	dup := CatalogConfig{Plans: []PlanSeed{
		{Name: "Pro", Price: 1, DurationDays: 30, Features: []string{"a"}},
		{Name: "pro", Price: 2, DurationDays: 30, Features: []string{"b"}},
	}}
	assert.Error(t, ValidateCatalogConfig(dup))
	assert.Error(t, ValidateCatalogConfig(CatalogConfig{}))
}

func TestStaticCatalogHolderNotifiesListeners(t *testing.T) {
	holder := NewStaticCatalogHolder(DefaultCatalogConfig())
	var got CatalogConfig
	holder.OnReload(func(cfg CatalogConfig) { got = cfg })

	next := CatalogConfig{Plans: []PlanSeed{{Name: "Solo", Price: 1, DurationDays: 7, Features: []string{"x"}}}}
	holder.notify(next)

	assert.Equal(t, "Solo", got.Plans[0].Name)
	assert.Len(t, holder.Get().Plans, 4)
}
