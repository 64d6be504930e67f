package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	meter := provider.Meter(cfg.meterName() + "/http")
	requests, reqErr := meter.Int64Counter("seometer_http_requests_total",
		metric.WithDescription("Inbound API requests."))
	duration, durErr := meter.Float64Histogram("seometer_http_request_duration_ms",
		metric.WithDescription("Inbound API latency."), metric.WithUnit("ms"))
	if err := errors.Join(reqErr, durErr); err != nil {
		return nil, err
	}
	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

// GinMiddleware records one sample per request keyed by route template.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		opt := metric.WithAttributes(
			attribute.String("endpoint", route),
			attribute.String("method", c.Request.Method),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		ctx := c.Request.Context()
		m.requests.Add(ctx, 1, opt)
		m.duration.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), opt)
	}
}
