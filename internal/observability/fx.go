package observability

import (
	"github.com/smallbiznis/seometer/internal/observability/logger"
	"github.com/smallbiznis/seometer/internal/observability/metrics"
	"github.com/smallbiznis/seometer/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		NewConfig,
		splitConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.LedgerWithConfig,
	),
	// The tracer provider must exist before the HTTP middleware starts spans.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

type signalConfigs struct {
	fx.Out

	Logger  logger.Config
	Tracing tracing.Config
	Metrics metrics.Config
}

func splitConfig(cfg Config) signalConfigs {
	debug := cfg.Debug()
	return signalConfigs{
		Logger: logger.Config{
			ServiceName:         cfg.Service,
			Environment:         cfg.Environment,
			Version:             cfg.Version,
			Level:               cfg.LogLevel,
			Format:              cfg.LogFormat,
			Debug:               debug,
			IncludeCaller:       true,
			IncludeStackOnError: debug,
		},
		Tracing: tracing.Config{
			Enabled:          cfg.Export.Enabled,
			ServiceName:      cfg.Service,
			ServiceVersion:   cfg.Version,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.Export.Endpoint,
			ExporterProtocol: cfg.Export.Protocol,
			SamplingRatio:    cfg.Export.SamplingRatio,
		},
		Metrics: metrics.Config{
			Enabled:          cfg.Export.Enabled,
			ExporterEndpoint: cfg.Export.Endpoint,
			ExporterProtocol: cfg.Export.Protocol,
			ServiceName:      cfg.Service,
			ServiceVersion:   cfg.Version,
			Environment:      cfg.Environment,
			Interval:         cfg.Export.MetricsInterval,
		},
	}
}
