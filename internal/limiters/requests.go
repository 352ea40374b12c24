package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRequestLimiterUnavailable = errors.New("request limiter unavailable")
)

// LimitedError is returned when an action exceeds its window budget.
type LimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("%s rate limited, retry in %s", e.Action, e.RetryAfter)
}

// Window is a fixed-window budget.
type Window struct {
	MaxAttempts int
	Period      time.Duration
}

// RequestLimiter enforces one fixed window per action and identity.
// Actions without a configured window are not limited.
type RequestLimiter struct {
	redis   redis.UniversalClient
	prefix  string
	windows map[string]Window
}

// NewRequestLimiter creates a RequestLimiter. windows is copied.
func NewRequestLimiter(redisClient redis.UniversalClient, prefix string, windows map[string]Window) *RequestLimiter {
	if prefix == "" {
		prefix = "arl"
	}
	w := make(map[string]Window, len(windows))
	for k, v := range windows {
		w[k] = v
	}
	return &RequestLimiter{redis: redisClient, prefix: prefix, windows: w}
}

func (l *RequestLimiter) key(action, identity string) string {
	return l.prefix + ":" + action + ":" + identity
}

// Check counts one request and returns *LimitedError once the budget is spent.
func (l *RequestLimiter) Check(ctx context.Context, action, identity string) error {
	if l == nil {
		return nil
	}
	w, ok := l.windows[action]
	if !ok || w.MaxAttempts <= 0 || w.Period <= 0 {
		return nil
	}

	key := l.key(action, identity)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestLimiterUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, w.Period).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRequestLimiterUnavailable, err)
		}
	}
	if count <= int64(w.MaxAttempts) {
		return nil
	}

	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = w.Period
	}
	return &LimitedError{Action: action, RetryAfter: ttl}
}

// Reset forgets the counter for action and identity.
func (l *RequestLimiter) Reset(ctx context.Context, action, identity string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(action, identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRequestLimiterUnavailable, err)
	}
	return nil
}
