package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/seometer/internal/observability/otlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultInterval = 10 * time.Second

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	ServiceVersion   string
	Environment      string
	// Interval between periodic OTLP pushes.
	Interval time.Duration
}

func (c Config) meterName() string {
	if name := strings.TrimSpace(c.ServiceName); name != "" {
		return name
	}
	return "seometer"
}

// Metrics holds the quota, usage and vendor instruments pushed over OTLP.
type Metrics struct {
	quotaAllowed  metric.Int64Counter
	quotaDenied   metric.Int64Counter
	usageCommits  metric.Int64Counter
	vendorCalls   metric.Int64Counter
	vendorLatency metric.Float64Histogram
}

// NewProvider installs the global meter provider. A disabled config yields a no-op provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	target, err := otlp.NewTarget(cfg.ExporterEndpoint, cfg.ExporterProtocol)
	if err != nil {
		return nil, err
	}
	exporter, err := newExporter(target)
	if err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.meterName()),
			attribute.String("service.version", strings.TrimSpace(cfg.ServiceVersion)),
			attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
		)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	if log != nil {
		log.Info("metrics export enabled",
			zap.String("endpoint", target.Endpoint),
			zap.String("protocol", string(target.Protocol)),
			zap.Duration("interval", interval),
		)
	}
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(cfg.meterName())

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	m := &Metrics{
		quotaAllowed: counter("seometer_quota_allowed_total", "Guard checks that passed."),
		quotaDenied:  counter("seometer_quota_denied_total", "Guard checks refused for exceeding the plan limit."),
		usageCommits: counter("seometer_usage_committed_units_total", "Units added to monthly usage."),
		vendorCalls:  counter("seometer_vendor_calls_total", "Outbound DataForSEO calls by outcome."),
	}
	latency, err := meter.Float64Histogram("seometer_vendor_call_duration_ms",
		metric.WithDescription("DataForSEO round trip latency."),
		metric.WithUnit("ms"),
	)
	errs = append(errs, err)
	m.vendorLatency = latency

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordQuotaDecision(ctx context.Context, category, plan string, allowed bool) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(FilterAttributes(
		attribute.String("category", strings.TrimSpace(category)),
		attribute.String("plan", strings.TrimSpace(plan)),
	)...)
	if allowed {
		m.quotaAllowed.Add(ctx, 1, opt)
	} else {
		m.quotaDenied.Add(ctx, 1, opt)
	}
}

func (m *Metrics) RecordUsageCommit(ctx context.Context, category string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.usageCommits.Add(ctx, amount, metric.WithAttributes(
		FilterAttributes(attribute.String("category", strings.TrimSpace(category)))...,
	))
}

// RecordVendorCall counts a vendor round trip. Outcome is one of the recorder outcomes.
func (m *Metrics) RecordVendorCall(ctx context.Context, category, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(FilterAttributes(
		attribute.String("category", strings.TrimSpace(category)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...)
	m.vendorCalls.Add(ctx, 1, opt)
	m.vendorLatency.Record(ctx, float64(elapsed)/float64(time.Millisecond), opt)
}

func newExporter(target otlp.Target) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	if target.Protocol == otlp.ProtocolHTTP {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if target.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(target.Endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
	if target.Endpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(target.Endpoint))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

// Labels allowed on OTLP instruments. User ids and targets are never labels.
var allowedLabelKeys = map[attribute.Key]bool{
	"category":    true,
	"plan":        true,
	"outcome":     true,
	"endpoint":    true,
	"method":      true,
	"status_code": true,
	"reason":      true,
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			kept = append(kept, attr)
		}
	}
	return kept
}
