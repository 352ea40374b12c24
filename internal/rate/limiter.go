package rate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Policy holds the tuning parameters applied to a single key.
type Policy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Validate reports whether every field of the policy is positive.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be > 0", ErrInvalidPolicy)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0", ErrInvalidPolicy)
	}
	if p.BlockDuration <= 0 {
		return fmt.Errorf("%w: block duration must be > 0", ErrInvalidPolicy)
	}
	return nil
}

// Decision is the outcome of a Check call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the remaining block time up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	return CeilSeconds(d.RetryAfter)
}

// CeilSeconds converts d to seconds, rounding any remainder up.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

type record struct {
	attempts     int
	firstAttempt time.Time
	blockedUntil time.Time
}

func (r *record) stale(now time.Time, window time.Duration) bool {
	return now.Sub(r.firstAttempt) > window && !now.Before(r.blockedUntil)
}

// Limiter enforces per-key sliding-window limits in memory.
//
// Limiter is safe for concurrent use; Check is a read-modify-write under a
// single mutex.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record
	windows map[string]time.Duration
	now     func() time.Time
	maxKeys int
	evicted uint64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now. Tests use it to move time deterministically.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithMaxKeys bounds the number of tracked keys. When a new key arrives at
// capacity, stale records are swept first and then the oldest window is evicted.
// Zero means unbounded.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) {
		if n >= 0 {
			l.maxKeys = n
		}
	}
}

// New creates an empty Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		records: make(map[string]*record),
		windows: make(map[string]time.Duration),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key builds the composite "<action>:<identity>" key.
func Key(action, identity string) string {
	return action + ":" + identity
}

// Check records an attempt for key and reports whether it is allowed.
func (l *Limiter) Check(key string, p Policy) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok {
		l.ensureCapacity(now)
		l.records[key] = &record{attempts: 1, firstAttempt: now}
		l.windows[key] = p.Window
		return Decision{Allowed: true}
	}
	l.windows[key] = p.Window

	if now.Before(rec.blockedUntil) {
		return Decision{Allowed: false, RetryAfter: rec.blockedUntil.Sub(now)}
	}

	if now.Sub(rec.firstAttempt) > p.Window {
		rec.attempts = 1
		rec.firstAttempt = now
		rec.blockedUntil = time.Time{}
		return Decision{Allowed: true}
	}

	rec.attempts++
	if rec.attempts > p.MaxAttempts {
		rec.blockedUntil = now.Add(p.BlockDuration)
		return Decision{Allowed: false, RetryAfter: p.BlockDuration}
	}

	return Decision{Allowed: true}
}

// Peek reports the current block for key without recording an attempt.
func (l *Limiter) Peek(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return Decision{Allowed: true}
	}
	now := l.now()
	if now.Before(rec.blockedUntil) {
		return Decision{Allowed: false, RetryAfter: rec.blockedUntil.Sub(now)}
	}
	return Decision{Allowed: true}
}

// Attempts returns the attempt counter for key, or zero when untracked.
func (l *Limiter) Attempts(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[key]; ok {
		return rec.attempts
	}
	return 0
}

// Reset drops the record for key; the next Check behaves as a first call.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.records, key)
	delete(l.windows, key)
}

// Clear drops every record.
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = make(map[string]*record)
	l.windows = make(map[string]time.Duration)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Evicted returns how many live records were evicted to honor WithMaxKeys.
func (l *Limiter) Evicted() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evicted
}

// Sweep removes records whose window has elapsed and whose block has ended.
// It returns the number of removed records.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *Limiter) sweepLocked(now time.Time) int {
	removed := 0
	for key, rec := range l.records {
		if rec.stale(now, l.windows[key]) {
			delete(l.records, key)
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) ensureCapacity(now time.Time) {
	if l.maxKeys == 0 || len(l.records) < l.maxKeys {
		return
	}
	if l.sweepLocked(now) > 0 && len(l.records) < l.maxKeys {
		return
	}

	// Unblocked records go first, oldest window first. Only when every key is
	// blocked does the block closest to ending give way.
	var (
		oldestKey  string
		oldest     time.Time
		blockedKey string
		soonest    time.Time
	)
	for key, rec := range l.records {
		if now.Before(rec.blockedUntil) {
			if blockedKey == "" || rec.blockedUntil.Before(soonest) {
				blockedKey = key
				soonest = rec.blockedUntil
			}
			continue
		}
		if oldestKey == "" || rec.firstAttempt.Before(oldest) {
			oldestKey = key
			oldest = rec.firstAttempt
		}
	}
	if oldestKey == "" {
		oldestKey = blockedKey
	}
	if oldestKey != "" {
		delete(l.records, oldestKey)
		delete(l.windows, oldestKey)
		l.evicted++
	}
}
