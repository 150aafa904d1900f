package observability

import (
	"strings"

	"github.com/smallbiznis/subscriptiond/internal/config"
)

// Config is the normalized observability view of config.Config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability
	return Config{
		ServiceName:          orDefault(cfg.AppName, "subscriptiond"),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             oneOf(obs.LogLevel, "info", "debug", "info", "warn", "error"),
		LogFormat:            oneOf(obs.LogFormat, "json", "json", "console"),
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(obs.OTLPEndpoint),
		OtelExporterProtocol: oneOf(obs.OTLPProtocol, "grpc", "grpc", "http"),
		OtelSamplingRatio:    clampRatio(obs.SamplingRatio),
	}
}

// Debug turns on verbose logging and gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func oneOf(value, def string, allowed ...string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	return def
}

func orDefault(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
