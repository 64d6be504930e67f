package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/seometer/internal/config"
	"go.uber.org/zap"
)

var ErrVendorRateLimited = errors.New("vendor_rate_limited")

// RateLimitedError reports a denied outbound call. It matches ErrVendorRateLimited.
type RateLimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("outbound rate limit reached for %s, retry after %s", e.Key, e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrVendorRateLimited
}

type bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error)
}

// VendorLimiter throttles outbound vendor calls per vendor account.
type VendorLimiter struct {
	bucket   bucket
	settings *config.QuotaConfigHolder
	key      string
	log      *zap.Logger
}

func NewVendorLimiter(bucket *TokenBucket, settings *config.QuotaConfigHolder, cfg config.Config, log *zap.Logger) *VendorLimiter {
	if bucket == nil {
		return &VendorLimiter{settings: settings, log: log.Named("ratelimit.vendor")}
	}
	return newVendorLimiter(bucket, settings, cfg.DataForSEO.Login, log)
}

func newVendorLimiter(b bucket, settings *config.QuotaConfigHolder, account string, log *zap.Logger) *VendorLimiter {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		account = "default"
	}
	return &VendorLimiter{
		bucket:   b,
		settings: settings,
		key:      "ratelimit:vendor:dataforseo:" + account,
		log:      log.Named("ratelimit.vendor"),
	}
}

// Allow returns nil when the call may proceed. Redis failures are logged and fail open.
func (l *VendorLimiter) Allow(ctx context.Context) error {
	if l == nil || l.bucket == nil {
		return nil
	}
	cfg := l.settings.Get()
	if !cfg.VendorLimitEnabled() {
		return nil
	}

	res, err := l.bucket.Allow(ctx, l.key, cfg.VendorRate, cfg.VendorBurst)
	if err != nil {
		l.log.Warn("vendor rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return &RateLimitedError{Key: l.key, RetryAfter: res.RetryAfter}
	}
	return nil
}
