package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Tokens are stored in milli-tokens so the script can return integers only.
// KEYS[1] bucket, ARGV rate (tokens/s), burst, ttl ms. Returns {allowed, remaining_milli}.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2]) * 1000
local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "milli", "at")
local milli = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now
if now > at then
  milli = math.min(capacity, milli + (now - at) * rate)
end

local allowed = 0
if milli >= 1000 then
  milli = milli - 1000
  allowed = 1
end
milli = math.floor(milli)

redis.call("HSET", KEYS[1], "milli", milli, "at", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {allowed, milli}
`

var (
	ErrBucketNotConfigured = errors.New("token bucket not configured")
	ErrInvalidBucket       = errors.New("token bucket needs a key and positive rate and burst")
)

// TokenBucket is a Redis token bucket shared by every process using the same key.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(tokenBucketScript)}
}

// Allow takes one token. rate is in tokens per second and burst is the bucket size.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, ErrBucketNotConfigured
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return nil, ErrInvalidBucket
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		rate, burst, bucketTTL(rate, burst).Milliseconds()).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) != 2 {
		return nil, errors.New("token bucket: unexpected script reply")
	}

	allowed := reply[0] == 1
	remaining := float64(reply[1]) / 1000
	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      burst,
		Remaining:  int(remaining),
		RetryAfter: retryAfter(allowed, remaining, rate),
	}, nil
}

// retryAfter is the time until one whole token is available again.
func retryAfter(allowed bool, remaining, rate float64) time.Duration {
	if allowed || rate <= 0 || remaining >= 1 {
		return 0
	}
	return time.Duration((1 - remaining) / rate * float64(time.Second))
}

// bucketTTL keeps idle buckets for twice their full refill time, at least one second.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(2*float64(burst)/rate))
	return time.Duration(seconds) * time.Second
}
