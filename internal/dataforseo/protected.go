package dataforseo

import (
	"context"
	"errors"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/seometer/internal/observability/context"
	"github.com/smallbiznis/seometer/internal/observability/logger"
	"github.com/smallbiznis/seometer/internal/observability/metrics"
	"github.com/smallbiznis/seometer/internal/observability/tracing"
	"github.com/smallbiznis/seometer/internal/plan"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	"github.com/smallbiznis/seometer/internal/ratelimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// OutboundLimiter throttles calls to the vendor account.
type OutboundLimiter interface {
	Allow(ctx context.Context) error
}

type CallOptions struct {
	Method string
	Tasks  []TaskRequest
	// Category overrides path classification when set.
	Category plan.Category
}

// Caller is the only path to the vendor: every call is classified and gated by the quota guard.
type Caller struct {
	client   *Client
	guard    quotadomain.Guard
	limiter  OutboundLimiter
	recorder *Recorder
	metrics  *metrics.Metrics
	log      *zap.Logger
	tracer   trace.Tracer
}

type CallerParam struct {
	fx.In

	Client   *Client
	Guard    quotadomain.Guard
	Log      *zap.Logger
	Limiter  OutboundLimiter  `optional:"true"`
	Recorder *Recorder        `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

func NewCaller(p CallerParam) *Caller {
	return &Caller{
		client:   p.Client,
		guard:    p.Guard,
		limiter:  p.Limiter,
		recorder: p.Recorder,
		metrics:  p.Metrics,
		log:      p.Log.Named("dataforseo.caller"),
		tracer:   otel.Tracer("seometer/dataforseo"),
	}
}

// CallProtected gates and performs a vendor call.
//
// increment > 0 commits usage before the call. increment == 0 only checks the limit, for
// follow-up round-trips of an action whose usage is already committed. A denied check
// returns *quotadomain.QuotaExceededError and no HTTP request is made.
func (c *Caller) CallProtected(ctx context.Context, userID, path string, opts CallOptions, increment int64) (*Response, error) {
	if increment < 0 {
		return nil, quotadomain.ErrInvalidIncrement
	}
	log := logger.WithContext(ctx, c.log)
	if obscontext.UserIDFromContext(ctx) == "" {
		log = logger.WithUser(log, userID)
	}

	category := opts.Category
	if category == "" {
		var ok bool
		category, ok = Classify(path)
		if !ok {
			log.Warn("unclassified vendor path metered as keyword search", zap.String("path", path))
		}
	}

	ctx, span := c.tracer.Start(ctx, "dataforseo.call", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("dataforseo.path", path),
		attribute.String("seometer.usage_category", string(category)),
		attribute.Int64("seometer.increment", increment),
	)...)

	started := time.Now()
	call := VendorCall{
		UserID:    strings.TrimSpace(userID),
		Path:      path,
		Category:  string(category),
		Increment: increment,
	}

	if err := c.client.Ready(); err != nil {
		c.finish(ctx, span, call, OutcomeConfigError, nil, err, started)
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Allow(ctx); err != nil {
			c.finish(ctx, span, call, OutcomeRateLimited, nil, err, started)
			return nil, err
		}
	}

	var (
		result quotadomain.CheckResult
		err    error
	)
	if increment > 0 {
		result, err = c.guard.CheckAndCommit(ctx, userID, category, increment)
	} else {
		result, err = c.guard.CheckLimit(ctx, userID, category, 0)
	}
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "quota check failed")
		return nil, err
	}
	if denied := quotadomain.Deny(result); denied != nil {
		c.finish(ctx, span, call, OutcomeDenied, nil, denied, started)
		return nil, denied
	}

	resp, err := c.client.Do(ctx, opts.Method, path, opts.Tasks)
	c.finish(ctx, span, call, outcomeFor(err), resp, err, started)
	if err != nil {
		log.Warn("vendor call failed",
			zap.String("path", path),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		return nil, err
	}
	return resp, nil
}

func (c *Caller) finish(ctx context.Context, span trace.Span, call VendorCall, outcome string, resp *Response, err error, started time.Time) {
	elapsed := time.Since(started)
	c.metrics.RecordVendorCall(ctx, call.Category, outcome, elapsed)

	span.SetAttributes(attribute.String("dataforseo.outcome", outcome))
	if err != nil && outcome != OutcomeDenied {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, outcome)
	}

	call.Outcome = outcome
	call.DurationMS = elapsed.Milliseconds()
	call.Metadata = map[string]any{}
	if resp != nil {
		call.VendorStatusCode = resp.StatusCode
		call.Cost = resp.Cost
		if ids := resp.TaskIDs(); len(ids) > 0 {
			call.Metadata["task_ids"] = ids
		}
	}

	var vendorErr *VendorError
	var transportErr *TransportError
	switch {
	case errors.As(err, &vendorErr):
		call.VendorStatusCode = vendorErr.Code
		call.Metadata["message"] = vendorErr.Message
	case errors.As(err, &transportErr):
		call.Metadata["http_status"] = transportErr.StatusCode
	default:
		if safe := tracing.SafeError(err); safe != nil {
			call.Metadata["error"] = safe.Error()
		}
	}
	c.recorder.Record(ctx, call)
}

func outcomeFor(err error) string {
	var vendorErr *VendorError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &vendorErr):
		return OutcomeVendorError
	case errors.Is(err, ErrMissingCredentials):
		return OutcomeConfigError
	case errors.Is(err, ratelimit.ErrVendorRateLimited):
		return OutcomeRateLimited
	}
	return OutcomeTransportError
}
