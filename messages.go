package relayauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/relayauth/internal/rate"
)

// UserMessage turns any error from this package into text safe to show a
// user. Backend messages are never included.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return "Too many attempts. Try again in " + formatWait(rl.RetryAfter) + "."
	}
	var lo *LockoutError
	if errors.As(err, &lo) {
		return "Too many failed sign-in attempts. Try again in " + formatWait(lo.RetryAfter) +
			" or reset your password."
	}
	var pp *PasswordPolicyError
	if errors.As(err, &pp) {
		return passwordPolicyMessage(pp)
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Incorrect email or password."
	case errors.Is(err, ErrEmailNotVerified):
		return "Please verify your email address. Check your inbox for the code."
	case errors.Is(err, ErrCodeExpired):
		return "That code has expired. Request a new one."
	case errors.Is(err, ErrCodeAlreadyUsed):
		return "That code has already been used. Request a new one."
	case errors.Is(err, ErrCodeInvalid):
		return "That code is not correct. Check it and try again, or request a new one."
	case errors.Is(err, ErrAccountExists):
		return "An account with this email already exists. Sign in instead."
	case errors.Is(err, ErrPasswordPolicy):
		return "That password is not strong enough."
	case errors.Is(err, ErrAccountLocked):
		return "This account is temporarily locked. Try again later or reset your password."
	case errors.Is(err, ErrInvalidIdentity):
		return "Enter a valid email address."
	case errors.Is(err, ErrNetworkUnavailable):
		return "You appear to be offline. Check your connection and try again."
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrNoSession):
		return "Your session has expired. Please start again."
	case errors.Is(err, ErrNoPendingVerification), errors.Is(err, ErrVerificationMismatch):
		return "Please sign up again to get a new code."
	case errors.Is(err, ErrOperationInFlight):
		return "Please wait for the current request to finish."
	case errors.Is(err, ErrInvalidTransition):
		return "That action is not available right now."
	default:
		return "Something went wrong. Please try again."
	}
}

// ShouldClearCode reports whether the code input should be emptied after err.
// The identity and cooldown are left alone.
func ShouldClearCode(err error) bool {
	return err != nil && isCodeError(err)
}

// OffersResend reports whether the screen should surface its resend action.
func OffersResend(err error) bool {
	return ShouldClearCode(err)
}

// RetryAfter returns the wait carried by a rate-limit or lockout error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	var lo *LockoutError
	if errors.As(err, &lo) {
		return lo.RetryAfter, true
	}
	return 0, false
}

func formatWait(d time.Duration) string {
	secs := rate.CeilSeconds(d)
	switch {
	case secs <= 1:
		return "1 second"
	case secs < 60:
		return fmt.Sprintf("%d seconds", secs)
	}
	mins := (secs + 59) / 60
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}

func passwordPolicyMessage(e *PasswordPolicyError) string {
	labels := map[string]string{
		RuleMinLength: "be longer",
		RuleMaxLength: "be shorter",
		RuleUpper:     "include an uppercase letter",
		RuleLower:     "include a lowercase letter",
		RuleDigit:     "include a number",
		RuleSpecial:   "include a symbol",
	}
	parts := make([]string, 0, len(e.Unmet))
	for _, rule := range e.Unmet {
		if l, ok := labels[rule]; ok {
			parts = append(parts, l)
		}
	}
	if len(parts) == 0 {
		return "That password is not strong enough."
	}
	return "Password must " + strings.Join(parts, ", ") + "."
}
