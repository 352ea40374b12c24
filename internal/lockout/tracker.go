// Package lockout tracks failed logins per identity and derives an advisory
// lock from them.
//
// The lock is a client-side UX signal. The identity backend is the authority
// on whether credentials are accepted; nothing here may be the only defence
// against credential stuffing.
package lockout

import (
	"sync"
	"time"
)

// Config holds the lockout policy.
type Config struct {
	Enabled   bool
	Threshold int
	Window    time.Duration // failures older than this no longer count
	Duration  time.Duration // how long the lock lasts once triggered
}

// DefaultConfig is 5 failures within 15 minutes, locked for 30 minutes.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Threshold: 5,
		Window:    15 * time.Minute,
		Duration:  30 * time.Minute,
	}
}

type failureRecord struct {
	count        int
	firstFailure time.Time
	lockedUntil  time.Time
}

// Tracker records failed logins per identity.
type Tracker struct {
	mu       sync.Mutex
	config   Config
	now      func() time.Time
	failures map[string]*failureRecord
}

// NewTracker creates a Tracker. A nil clock means time.Now.
func NewTracker(cfg Config, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		config:   cfg,
		now:      now,
		failures: make(map[string]*failureRecord),
	}
}

// RecordFailedLogin counts one failure for identity and reports whether the
// identity is locked after counting it.
func (t *Tracker) RecordFailedLogin(identity string) bool {
	if !t.config.Enabled || identity == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.failures[identity]
	if !ok || (now.Sub(rec.firstFailure) > t.config.Window && !now.Before(rec.lockedUntil)) {
		rec = &failureRecord{firstFailure: now}
		t.failures[identity] = rec
	}

	rec.count++
	if rec.count >= t.config.Threshold && !now.Before(rec.lockedUntil) {
		rec.lockedUntil = now.Add(t.config.Duration)
	}

	return now.Before(rec.lockedUntil)
}

// IsLocked reports whether identity is currently locked.
func (t *Tracker) IsLocked(identity string) bool {
	return t.RetryAfter(identity) > 0
}

// RetryAfter returns how long the lock on identity still lasts.
func (t *Tracker) RetryAfter(identity string) time.Duration {
	if !t.config.Enabled || identity == "" {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.failures[identity]
	if !ok {
		return 0
	}
	remaining := rec.lockedUntil.Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FailureCount returns the failures counted in the current window.
func (t *Tracker) FailureCount(identity string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.failures[identity]
	if !ok {
		return 0
	}
	now := t.now()
	if now.Sub(rec.firstFailure) > t.config.Window && !now.Before(rec.lockedUntil) {
		return 0
	}
	return rec.count
}

// Locked returns how many identities are locked right now.
func (t *Tracker) Locked() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	n := 0
	for _, rec := range t.failures {
		if now.Before(rec.lockedUntil) {
			n++
		}
	}
	return n
}

// Reset clears the counter for identity, e.g. after a successful login.
func (t *Tracker) Reset(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, identity)
}

// Clear drops every counter.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = make(map[string]*failureRecord)
}
