package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/seometer/internal/config"
)

// Config is the resolved telemetry setup handed to the logger, tracer and meter.
type Config struct {
	Service     string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	Export Export
}

// Export controls OTLP shipping. Disabled export still installs no-op providers.
type Export struct {
	Enabled         bool
	Endpoint        string
	Protocol        string
	SamplingRatio   float64
	MetricsInterval time.Duration
}

func NewConfig(cfg config.Config) Config {
	service := strings.TrimSpace(cfg.AppName)
	if service == "" {
		service = "seometer"
	}
	tel := cfg.Telemetry
	return Config{
		Service:     service,
		Environment: strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:     strings.TrimSpace(cfg.AppVersion),
		LogLevel:    tel.LogLevel,
		LogFormat:   tel.LogFormat,
		Export: Export{
			Enabled:         tel.OTLPEnabled,
			Endpoint:        strings.TrimSpace(cfg.OTLPEndpoint),
			Protocol:        tel.OTLPProtocol,
			SamplingRatio:   tel.SamplingRatio,
			MetricsInterval: tel.MetricsInterval,
		},
	}
}

// Debug turns on development logging and gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
