package observability

import (
	"testing"

	"github.com/smallbiznis/subscriptiond/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizes(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		Observability: config.ObservabilityConfig{
			LogLevel:      " WARN ",
			LogFormat:     "xml",
			OTLPProtocol:  "HTTP",
			SamplingRatio: 3,
		},
	})

	assert.Equal(t, "subscriptiond", cfg.ServiceName)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestDebugFollowsLevelOrEnvironment(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Debug())
	assert.True(t, Config{LogLevel: "info", Environment: "Test"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "staging"}.Debug())
}
