package relayauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	internalaudit "github.com/MrEthical07/relayauth/internal/audit"
	"github.com/MrEthical07/relayauth/internal/rate"
)

// RequestPasswordReset sends a recovery code to email. It is also the
// shortcut offered from LOGIN_BLOCKED.
func (c *Controller) RequestPasswordReset(ctx context.Context, email string) error {
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
	if err := c.allow(ctx, ActionReset, id, c.cfg.RateLimit.Reset); err != nil {
		return err
	}
	if err := c.sessions.RequestPasswordReset(ctx, id); err != nil {
		return err
	}

	c.metrics.Inc(MetricResetRequested)
	c.startCodeTimers()
	c.fire(ctx, EventResetRequested, id, 0)
	return nil
}

// ResendResetCode requests a new recovery code under the same cooldown and
// otpResend limiter as signup codes.
func (c *Controller) ResendResetCode(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.requireState(StateResetOTPSent); err != nil {
		return err
	}
	return c.resend(ctx, OTPRecovery)
}

// SubmitResetCode redeems the recovery code for a restricted session.
// Exhausting the otpVerify limiter abandons the recovery flow.
func (c *Controller) SubmitResetCode(ctx context.Context, code string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.requireState(StateResetOTPSent); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if !validCode(code, c.cfg.Verification.CodeLength) {
		return fmt.Errorf("%w: expected %d digits", ErrCodeInvalid, c.cfg.Verification.CodeLength)
	}
	if err := c.online(); err != nil {
		return err
	}

	id := c.Identity()
	if err := c.allow(ctx, ActionOTPVerify, id, c.cfg.RateLimit.OTPVerify); err != nil {
		c.abandonRecovery(ctx, id)
		return err
	}

	if _, err := c.sessions.VerifyResetCode(ctx, id, code); err != nil {
		if isCodeError(err) {
			c.codeRejected(ctx, id, err)
		}
		return err
	}

	c.limiter.Reset(rate.Key(ActionOTPVerify, id))
	c.metrics.Inc(MetricResetCodeVerified)
	c.resetCodeTimers()
	c.fire(ctx, EventResetCodeVerified, id, 0)
	return nil
}

// SubmitNewPassword sets the new password with the recovery session and
// lands in AUTHENTICATED. Prior failed logins for the identity are forgiven.
func (c *Controller) SubmitNewPassword(ctx context.Context, newPassword string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.requireState(StateResetSessionActive); err != nil {
		return err
	}
	if err := c.cfg.Password.CheckPassword(newPassword); err != nil {
		return err
	}
	if err := c.online(); err != nil {
		return err
	}

	id := c.Identity()
	s, err := c.sessions.UpdatePassword(ctx, newPassword)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNoSession) {
			c.abandonRecovery(ctx, id)
		}
		return err
	}
	if s.Email != "" {
		id = s.Email
	}

	c.tracker.Reset(id)
	c.limiter.Reset(rate.Key(ActionLogin, id))
	c.metrics.Inc(MetricPasswordUpdated)
	c.fire(ctx, EventPasswordUpdated, id, 0)
	return nil
}

// abandonRecovery drops any restricted session and returns to UNAUTHENTICATED.
func (c *Controller) abandonRecovery(ctx context.Context, id string) {
	c.sessions.InvalidateRecovery(ctx)
	c.resetCodeTimers()
	c.emit(ctx, AuditEvent{EventType: internalaudit.EventRecoveryInvalidated, Identity: id})
	c.fire(ctx, EventRecoveryInvalidated, "", 0)
}
