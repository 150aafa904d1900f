package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockHeld          = errors.New("lock_held")
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrInvalidLock       = errors.New("invalid_lock")
)

// Deletes KEYS[1] only while it still holds ARGV[1].
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker hands out short Redis leases keyed by name. A nil Locker means no
// Redis; callers decide whether that is fatal.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

// Lease is one held lock.
type Lease struct {
	Key   string
	Token string

	locker *Locker
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, release: redis.NewScript(releaseScript)}
}

// Acquire takes key for ttl. It returns ErrLockHeld when someone else has it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotConfigured
	}
	key = strings.TrimSpace(key)
	if key == "" || ttl <= 0 {
		return nil, ErrInvalidLock
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{Key: key, Token: token, locker: l}, nil
}

// Release is safe on a nil lease and after expiry.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.locker == nil {
		return nil
	}
	return le.locker.releaseToken(ctx, le.Key, le.Token)
}

func (l *Locker) releaseToken(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}
