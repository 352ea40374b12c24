package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the server-side lockout limiter.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration // failures are counted within this rolling TTL
	Duration  time.Duration // lock length once the threshold is reached
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutLimiter tracks failed sign-ins and locks identities that reach the
// configured threshold.
type LockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockoutLimiter creates a new lockout limiter.
func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	return &LockoutLimiter{redis: redisClient, config: cfg}
}

func (l *LockoutLimiter) countKey(identity string) string {
	return "alo:c:" + identity
}

func (l *LockoutLimiter) lockKey(identity string) string {
	return "alo:l:" + identity
}

// RecordFailure increments the failure counter for identity. When the
// threshold is reached the identity is locked and the lock length returned.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, identity string) (time.Duration, error) {
	if l == nil || !l.config.Enabled || identity == "" {
		return 0, nil
	}

	count, err := l.redis.Incr(ctx, l.countKey(identity)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.countKey(identity), l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}

	if count < int64(l.config.Threshold) {
		return 0, nil
	}

	_, err = l.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, l.lockKey(identity), 1, l.config.Duration)
		p.Del(ctx, l.countKey(identity))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return l.config.Duration, nil
}

// LockedFor returns the remaining lock time for identity, or zero.
func (l *LockoutLimiter) LockedFor(ctx context.Context, identity string) (time.Duration, error) {
	if l == nil || !l.config.Enabled || identity == "" {
		return 0, nil
	}

	ttl, err := l.redis.PTTL(ctx, l.lockKey(identity)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Reset clears the failure counter and any lock for identity.
func (l *LockoutLimiter) Reset(ctx context.Context, identity string) error {
	if l == nil || !l.config.Enabled || identity == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.countKey(identity), l.lockKey(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// FailureCount returns the failures counted in the current window.
func (l *LockoutLimiter) FailureCount(ctx context.Context, identity string) (int, error) {
	if l == nil || !l.config.Enabled || identity == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.countKey(identity)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
