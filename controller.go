package relayauth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/relayauth/internal/audit"
	"github.com/MrEthical07/relayauth/internal/lockout"
	"github.com/MrEthical07/relayauth/internal/rate"
)

// Controller is the auth-flow state machine. It runs one operation at a
// time; a second call while one is in flight fails with
// ErrOperationInFlight. All methods are safe for concurrent use.
type Controller struct {
	cfg      Config
	sessions *SessionManager
	limiter  *rate.Limiter
	tracker  *lockout.Tracker
	reach    Reachability
	logger   *slog.Logger
	now      func() time.Time
	metrics  *Metrics
	audit    *internalaudit.Dispatcher

	busy   atomic.Bool
	closed atomic.Bool

	mu            sync.Mutex
	state         State
	identity      string
	cooldownUntil time.Time
	codeSentAt    time.Time
	subs          map[int]func(Transition)
	nextSub       int

	stopSweeper context.CancelFunc
	sweeperDone chan struct{}
	closeOnce   sync.Once
}

// begin claims the single operation slot.
func (c *Controller) begin() error {
	if c.closed.Load() {
		return ErrControllerClosed
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrOperationInFlight
	}
	return nil
}

func (c *Controller) end() { c.busy.Store(false) }

// Busy reports whether an operation is in flight.
func (c *Controller) Busy() bool { return c.busy.Load() }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the normalized email the current flow is about, if any.
func (c *Controller) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Route returns the screen for the current state.
func (c *Controller) Route() Route { return RouteFor(c.State()) }

// InAuthFlow reports whether routing should keep the user on auth screens.
func (c *Controller) InAuthFlow() bool { return c.State().InAuthFlow() }

// Snapshot returns the session manager's shared view.
func (c *Controller) Snapshot() Snapshot { return c.sessions.Snapshot() }

// Sessions exposes the session manager for snapshot subscriptions.
func (c *Controller) Sessions() *SessionManager { return c.sessions }

// Subscribe registers fn for every transition and returns its cancel func.
// fn runs synchronously after the state changed and must not call back into
// a blocking Controller operation.
func (c *Controller) Subscribe(fn func(Transition)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// ResendCooldownRemaining returns how long until a code may be resent.
func (c *Controller) ResendCooldownRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldownLocked()
}

func (c *Controller) cooldownLocked() time.Duration {
	d := c.cooldownUntil.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

// CodeExpiresIn estimates how long the last sent code stays valid.
func (c *Controller) CodeExpiresIn() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codeSentAt.IsZero() {
		return 0
	}
	d := c.codeSentAt.Add(c.cfg.Verification.CodeTTL).Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

// LockoutRetryAfter returns the remaining advisory lock for the current
// identity.
func (c *Controller) LockoutRetryAfter() time.Duration {
	return c.tracker.RetryAfter(c.Identity())
}

// CooldownCountdown starts a Countdown to the end of the resend cooldown.
func (c *Controller) CooldownCountdown(ctx context.Context, onTick func(time.Duration)) *Countdown {
	c.mu.Lock()
	deadline := c.cooldownUntil
	c.mu.Unlock()
	return StartCountdown(ctx, deadline, time.Second, c.now, onTick)
}

// CodeExpiryCountdown starts a Countdown to the estimated code expiry.
func (c *Controller) CodeExpiryCountdown(ctx context.Context, onTick func(time.Duration)) *Countdown {
	c.mu.Lock()
	deadline := c.codeSentAt.Add(c.cfg.Verification.CodeTTL)
	c.mu.Unlock()
	return StartCountdown(ctx, deadline, time.Second, c.now, onTick)
}

// Metrics returns the in-process counters.
func (c *Controller) Metrics() *Metrics { return c.metrics }

// MetricsSnapshot returns the counters and latency buckets.
func (c *Controller) MetricsSnapshot() MetricsSnapshot { return c.metrics.Snapshot() }

// AuditDropped returns how many audit events were dropped.
func (c *Controller) AuditDropped() uint64 { return c.audit.Dropped() }

// Initialize restores a stored session: a full session leads to
// AUTHENTICATED, a recovery session to RESET_SESSION_ACTIVE, anything else
// stays UNAUTHENTICATED.
func (c *Controller) Initialize(ctx context.Context) (State, error) {
	if err := c.begin(); err != nil {
		return c.State(), err
	}
	defer c.end()

	if err := c.requireState(StateUnauthenticated); err != nil {
		return c.State(), err
	}

	snap, err := c.sessions.Initialize(ctx)
	switch {
	case snap.Session.IsFull():
		c.fire(ctx, EventSessionRestored, snap.Session.Email, 0)
	case snap.Session.IsRecovery():
		c.fire(ctx, EventRecoveryRestored, snap.Session.Email, 0)
	}
	return c.State(), err
}

// SignOut ends the session and clears every ephemeral record.
func (c *Controller) SignOut(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.requireState(StateAuthenticated); err != nil {
		return err
	}
	c.sessions.SignOut(ctx)
	c.resetCodeTimers()
	c.fire(ctx, EventSignedOut, "", 0)
	return nil
}

// Cancel abandons the current flow and returns to UNAUTHENTICATED. A
// recovery session is invalidated. A pending signup is kept so a later login
// with the same email routes back to verification; a new signup replaces it.
func (c *Controller) Cancel(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	state := c.State()
	if !Allowed(state, EventCancelled) {
		return &StateError{State: state}
	}
	if state == StateResetSessionActive {
		c.sessions.InvalidateRecovery(ctx)
	}
	c.resetCodeTimers()
	c.fire(ctx, EventCancelled, "", 0)
	return nil
}

// Close stops the sweeper, detaches from the backend and flushes audit.
// Later operations fail with ErrControllerClosed.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.stopSweeper != nil {
			c.stopSweeper()
			<-c.sweeperDone
		}
		c.sessions.Close()
		c.audit.Close()
	})
}

// onSessionEnded handles backend sign-out and refresh failure.
func (c *Controller) onSessionEnded(kind SessionEventKind) {
	state := c.State()
	if !Allowed(state, EventSessionEnded) {
		return
	}
	ctx := context.Background()
	c.fire(ctx, EventSessionEnded, "", 0)
	c.emit(ctx, AuditEvent{EventType: internalaudit.EventSessionEnded, Metadata: map[string]string{"reason": kind.String()}})
}

func (c *Controller) requireState(allowed ...State) error {
	state := c.State()
	for _, s := range allowed {
		if s == state {
			return nil
		}
	}
	return &StateError{State: state}
}

// StateError reports an operation started from the wrong state.
type StateError struct {
	State State
}

func (e *StateError) Error() string {
	return ErrInvalidTransition.Error() + ": not allowed in " + e.State.String()
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidTransition }

// fire applies ev through the transition table and notifies subscribers.
// identity replaces the flow identity unless empty; events that leave the
// auth flow for UNAUTHENTICATED clear it.
func (c *Controller) fire(ctx context.Context, ev Event, identity string, retryAfter time.Duration) {
	c.mu.Lock()
	from := c.state
	to, err := Next(from, ev)
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("relayauth: dropped transition", slog.Any("error", err))
		return
	}
	c.state = to
	switch {
	case identity != "":
		c.identity = identity
	case to == StateUnauthenticated && ev != EventLoginFailed:
		c.identity = ""
	}
	tr := Transition{
		From:       from,
		To:         to,
		Event:      ev,
		Identity:   c.identity,
		RetryAfter: retryAfter,
		At:         c.now(),
	}
	subs := make([]func(Transition), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	c.metrics.Inc(MetricTransition)
	c.logger.Debug("relayauth: transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("event", ev.String()))

	meta := map[string]string{"event": ev.String()}
	if retryAfter > 0 {
		meta["retry_after_s"] = strconv.Itoa(rate.CeilSeconds(retryAfter))
	}
	c.emit(ctx, AuditEvent{
		EventType: internalaudit.EventTransition,
		Identity:  tr.Identity,
		From:      from.String(),
		To:        to.String(),
		Success:   true,
		Metadata:  meta,
	})

	for _, fn := range subs {
		fn(tr)
	}
}

func (c *Controller) emit(ctx context.Context, ev AuditEvent) {
	if c.audit == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}
	c.audit.Emit(ctx, ev)
}

// online short-circuits work that would fail without a network.
func (c *Controller) online() error {
	if c.reach.Online() {
		return nil
	}
	c.metrics.Inc(MetricNetworkUnavailable)
	return ErrNetworkUnavailable
}

// allow charges one attempt to "<action>:<identity>".
func (c *Controller) allow(ctx context.Context, action, identity string, p RateLimitPolicy) error {
	d := c.limiter.Check(rate.Key(action, identity), p.policy())
	if d.Allowed {
		return nil
	}
	c.metrics.Inc(MetricRateLimitHit)
	c.emit(ctx, AuditEvent{
		EventType: internalaudit.EventRateLimited,
		Identity:  identity,
		Metadata: map[string]string{
			"action":        action,
			"retry_after_s": strconv.Itoa(d.RetryAfterSeconds()),
		},
	})
	return &RateLimitError{Action: action, RetryAfter: d.RetryAfter}
}

func (c *Controller) startCodeTimers() {
	c.mu.Lock()
	now := c.now()
	c.cooldownUntil = now.Add(c.cfg.Verification.ResendCooldown)
	c.codeSentAt = now
	c.mu.Unlock()
}

func (c *Controller) resetCodeTimers() {
	c.mu.Lock()
	c.cooldownUntil = time.Time{}
	c.codeSentAt = time.Time{}
	c.mu.Unlock()
}

// resend is shared by both code flows.
func (c *Controller) resend(ctx context.Context, kind OTPKind) error {
	c.mu.Lock()
	remaining := c.cooldownLocked()
	identity := c.identity
	c.mu.Unlock()

	if remaining > 0 {
		return &RateLimitError{Action: ActionOTPResend, RetryAfter: remaining}
	}
	if err := c.online(); err != nil {
		return err
	}
	if err := c.allow(ctx, ActionOTPResend, identity, c.cfg.RateLimit.OTPResend); err != nil {
		return err
	}

	var err error
	if kind == OTPRecovery {
		err = c.sessions.ResendResetCode(ctx, identity)
	} else {
		err = c.sessions.ResendCode(ctx, identity)
	}
	if err != nil {
		return err
	}
	c.metrics.Inc(MetricCodeResent)
	c.startCodeTimers()
	c.fire(ctx, EventCodeResent, identity, 0)
	return nil
}

// codeRejected records a failed code submission without leaving the state.
func (c *Controller) codeRejected(ctx context.Context, identity string, err error) {
	c.metrics.Inc(MetricCodeVerifyFailure)
	c.emit(ctx, AuditEvent{
		EventType: internalaudit.EventCodeRejected,
		Identity:  identity,
		Error:     errorKind(err),
	})
	c.fire(ctx, EventCodeRejected, identity, 0)
}

// errorKind names err's sentinel for audit records without leaking backend text.
func errorKind(err error) string {
	for _, kind := range knownKinds {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return ErrBackendUnexpected.Error()
}
