package relayauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/relayauth/internal/rate"
)

// SubmitSignUp registers a new account and moves to SIGNUP_OTP_SENT.
// Checks run in order: state, email, password policy, network, then the
// signup:<email> limiter. Nothing reaches the backend if a check fails.
func (c *Controller) SubmitSignUp(ctx context.Context, in SignUpInput) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.requireState(StateUnauthenticated); err != nil {
		return err
	}
	id, err := validateIdentity(in.Email)
	if err != nil {
		return err
	}
	if err := c.cfg.Password.CheckPassword(in.Password); err != nil {
		return err
	}
	if err := c.online(); err != nil {
		return err
	}
	if err := c.allow(ctx, ActionSignup, id, c.cfg.RateLimit.Signup); err != nil {
		return err
	}

	in.Email = id
	in.Phone = strings.TrimSpace(in.Phone)
	in.FullName = strings.TrimSpace(in.FullName)
	if _, err := c.sessions.SignUp(ctx, in); err != nil {
		return err
	}

	c.metrics.Inc(MetricSignupSubmitted)
	c.startCodeTimers()
	c.fire(ctx, EventSignupSubmitted, id, 0)
	return nil
}

// SubmitSignupCode confirms the signup. A code that is not exactly the
// configured number of digits fails with ErrCodeInvalid without reaching the
// backend; every code failure leaves the state unchanged.
func (c *Controller) SubmitSignupCode(ctx context.Context, code string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.requireState(StateSignupOTPSent); err != nil {
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
		return err
	}

	s, err := c.sessions.VerifyEmailCode(ctx, id, code)
	if err != nil {
		if isCodeError(err) {
			c.codeRejected(ctx, id, err)
		}
		return err
	}

	c.limiter.Reset(rate.Key(ActionOTPVerify, id))
	c.metrics.Inc(MetricCodeVerifySuccess)
	c.resetCodeTimers()
	c.fire(ctx, EventCodeVerified, s.Email, 0)
	return nil
}

// ResendSignupCode requests a new signup code once the cooldown has elapsed
// and the otpResend:<email> limiter allows it.
func (c *Controller) ResendSignupCode(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.requireState(StateSignupOTPSent); err != nil {
		return err
	}
	return c.resend(ctx, OTPSignup)
}
