package relayauth

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/relayauth/internal/audit"
	"github.com/MrEthical07/relayauth/internal/rate"
)

// SubmitLogin signs in with email and password.
//
// A locked identity is refused locally with *LockoutError before the
// login:<email> limiter is charged. Only ErrInvalidCredentials counts
// towards the lockout: the failure is recorded after the backend answered
// and the lock is evaluated after recording. ErrEmailNotVerified routes to
// SIGNUP_OTP_SENT when a signup for the same email is pending and is never
// counted. Network and unexpected errors leave the state unchanged.
func (c *Controller) SubmitLogin(ctx context.Context, email, password string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.requireState(StateUnauthenticated, StateLoginBlocked); err != nil {
		return err
	}
	id, err := validateIdentity(email)
	if err != nil {
		return err
	}
	if err := c.online(); err != nil {
		return err
	}

	if retry := c.tracker.RetryAfter(id); retry > 0 {
		c.metrics.Inc(MetricLockoutDenied)
		c.fire(ctx, EventLockoutReached, id, retry)
		return &LockoutError{Identity: id, RetryAfter: retry}
	}
	if err := c.allow(ctx, ActionLogin, id, c.cfg.RateLimit.Login); err != nil {
		return err
	}

	_, err = c.sessions.SignIn(ctx, id, password)
	switch {
	case err == nil:
		c.tracker.Reset(id)
		c.limiter.Reset(rate.Key(ActionLogin, id))
		c.metrics.Inc(MetricLoginSuccess)
		c.fire(ctx, EventLoginSucceeded, id, 0)
		return nil

	case errors.Is(err, ErrEmailNotVerified):
		c.metrics.Inc(MetricLoginEmailNotVerified)
		// No code went out on this path, so resend is open immediately and
		// the age of the earlier code is unknown.
		if p := c.sessions.Snapshot().Pending; p != nil && p.Email == id {
			c.resetCodeTimers()
			c.fire(ctx, EventEmailNotVerified, id, 0)
		}
		return err

	case errors.Is(err, ErrInvalidCredentials):
		c.metrics.Inc(MetricLoginFailure)
		c.emit(ctx, AuditEvent{EventType: internalaudit.EventLoginFailed, Identity: id, Error: errorKind(err)})
		if c.tracker.RecordFailedLogin(id) {
			retry := c.tracker.RetryAfter(id)
			c.metrics.Inc(MetricLockoutTriggered)
			c.emit(ctx, AuditEvent{EventType: internalaudit.EventLockout, Identity: id})
			c.fire(ctx, EventLockoutReached, id, retry)
			return &LockoutError{Identity: id, RetryAfter: retry, cause: err}
		}
		c.fire(ctx, EventLoginFailed, id, 0)
		return err

	case errors.Is(err, ErrAccountLocked):
		var be *BackendError
		retry := c.cfg.Lockout.Duration
		if errors.As(err, &be) && be.RetryAfter > 0 {
			retry = be.RetryAfter
		}
		c.fire(ctx, EventLockoutReached, id, retry)
		return err

	default:
		return err
	}
}
