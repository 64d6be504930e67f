package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
)

// Deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var (
	ErrLockNotConfigured = errors.New("lock client not configured")
	ErrEmptyLockKey      = errors.New("lock key is empty")
	ErrInvalidLockTTL    = errors.New("lock ttl must be positive")
)

// Locker serializes usage commits across replicas. Keys are namespaced under "quota:lock:".
type Locker struct {
	client *redis.Client
}

var _ quotadomain.CommitLocker = (*Locker)(nil)

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

func lockKey(key string) string {
	return "quota:lock:" + key
}

// TryLock makes one attempt. ok is false when another holder owns key. The returned token
// must be passed to Release.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	switch {
	case l == nil || l.client == nil:
		return "", false, ErrLockNotConfigured
	case key == "":
		return "", false, ErrEmptyLockKey
	case ttl <= 0:
		return "", false, ErrInvalidLockTTL
	}

	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Release is a no-op for an empty token or a lock that expired and was taken by someone else.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{lockKey(key)}, token).Err()
}

// NewCommitLocker hands the guard a nil interface when Redis is off, which disables
// commit serialization instead of failing every commit.
func NewCommitLocker(locker *Locker) quotadomain.CommitLocker {
	if locker == nil {
		return nil
	}
	return locker
}
