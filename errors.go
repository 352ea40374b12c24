package relayauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/MrEthical07/relayauth/internal/rate"
)

var (
	// ErrInvalidCredentials means the backend rejected the email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified means the account exists but its email was never
	// confirmed. It routes to verification and never counts as a failed login.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrCodeExpired means the one-time code was correct but too old.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeInvalid means the one-time code is malformed or does not match.
	ErrCodeInvalid = errors.New("verification code invalid")
	// ErrCodeAlreadyUsed means the one-time code was already redeemed.
	ErrCodeAlreadyUsed = errors.New("verification code already used")
	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrAccountLockedLocally is matched by every *LockoutError.
	ErrAccountLockedLocally = errors.New("account locked on this device")
	// ErrAccountLocked means the backend itself refused the identity for now.
	ErrAccountLocked = errors.New("account locked")
	// ErrNetworkUnavailable means the device is offline or the backend unreachable.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrBackendUnexpected is the catch-all for anything the backend returned
	// that has no better mapping.
	ErrBackendUnexpected = errors.New("unexpected backend error")

	// ErrAccountExists is returned by sign-up for a registered email.
	ErrAccountExists = errors.New("account already exists")
	// ErrPasswordPolicy is matched by every *PasswordPolicyError.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidIdentity is returned for an empty or malformed email.
	ErrInvalidIdentity = errors.New("invalid email address")
	// ErrSessionExpired means the session can no longer be used or refreshed.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoSession is returned when an operation needs a session and none is held.
	ErrNoSession = errors.New("no active session")
	// ErrNoPendingVerification is returned when a signup code is submitted
	// without a signup in progress.
	ErrNoPendingVerification = errors.New("no pending verification")
	// ErrVerificationMismatch is returned when a code is submitted for an email
	// other than the pending signup's.
	ErrVerificationMismatch = errors.New("verification email does not match pending signup")

	// ErrOperationInFlight is returned when a controller operation is started
	// while another is still running.
	ErrOperationInFlight = errors.New("operation already in flight")
	// ErrInvalidTransition is returned when an operation is not allowed from
	// the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrControllerClosed is returned after Close.
	ErrControllerClosed = errors.New("controller closed")
)

// RateLimitError is a local or backend throttle denial.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
	cause      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s, retry in %ds", ErrRateLimited, e.Action, e.RetryAfterSeconds())
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Unwrap exposes the backend error, if any.
func (e *RateLimitError) Unwrap() error { return e.cause }

// RetryAfterSeconds rounds the wait up to whole seconds.
func (e *RateLimitError) RetryAfterSeconds() int { return rate.CeilSeconds(e.RetryAfter) }

// LockoutError is the advisory client lockout denial. When the failure that
// triggered the lock is known it is available through Unwrap.
type LockoutError struct {
	Identity   string
	RetryAfter time.Duration
	cause      error
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s, retry in %ds", ErrAccountLockedLocally, e.RetryAfterSeconds())
}

// Is lets errors.Is(err, ErrAccountLockedLocally) match.
func (e *LockoutError) Is(target error) bool { return target == ErrAccountLockedLocally }

func (e *LockoutError) Unwrap() error { return e.cause }

// RetryAfterSeconds rounds the wait up to whole seconds.
func (e *LockoutError) RetryAfterSeconds() int { return rate.CeilSeconds(e.RetryAfter) }

// BackendError is the wire-level failure an IdentityBackend reports.
// Message is for logs only and never shown to users.
type BackendError struct {
	Code       string
	Message    string
	Status     int
	RetryAfter time.Duration
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error %s (status %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("backend error %s (status %d): %s", e.Code, e.Status, e.Message)
}

// Backend error codes understood by classifyBackendError.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeOTPExpired         = "otp_expired"
	CodeOTPInvalid         = "otp_invalid"
	CodeOTPUsed            = "otp_used"
	CodeUserAlreadyExists  = "user_already_exists"
	CodeWeakPassword       = "weak_password"
	CodeOverRateLimit      = "over_rate_limit"
	CodeAccountLocked      = "account_locked"
	CodeSessionExpired     = "session_expired"
	CodeSessionNotFound    = "session_not_found"
	CodeRefreshReused      = "refresh_token_reused"
	CodeInvalidRequest     = "invalid_request"
	CodeNetwork            = "network_error"
)

var backendCodeKinds = map[string]error{
	CodeInvalidCredentials: ErrInvalidCredentials,
	CodeEmailNotConfirmed:  ErrEmailNotVerified,
	CodeOTPExpired:         ErrCodeExpired,
	CodeOTPInvalid:         ErrCodeInvalid,
	CodeOTPUsed:            ErrCodeAlreadyUsed,
	CodeUserAlreadyExists:  ErrAccountExists,
	CodeWeakPassword:       ErrPasswordPolicy,
	CodeAccountLocked:      ErrAccountLocked,
	CodeSessionExpired:     ErrSessionExpired,
	CodeSessionNotFound:    ErrSessionExpired,
	CodeRefreshReused:      ErrSessionExpired,
	CodeNetwork:            ErrNetworkUnavailable,
}

// knownKinds are passed through unchanged when a backend already returns them.
var knownKinds = []error{
	ErrInvalidCredentials,
	ErrEmailNotVerified,
	ErrCodeExpired,
	ErrCodeInvalid,
	ErrCodeAlreadyUsed,
	ErrRateLimited,
	ErrAccountLocked,
	ErrNetworkUnavailable,
	ErrBackendUnexpected,
	ErrAccountExists,
	ErrPasswordPolicy,
	ErrSessionExpired,
}

// classifyBackendError maps whatever an IdentityBackend returned onto the
// error taxonomy. The backend error code is the only signal used; message
// text is never inspected.
func classifyBackendError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var be *BackendError
	if errors.As(err, &be) {
		code := strings.ToLower(strings.TrimSpace(be.Code))
		if code == CodeOverRateLimit {
			return &RateLimitError{Action: "backend", RetryAfter: be.RetryAfter, cause: err}
		}
		if kind, ok := backendCodeKinds[code]; ok {
			return fmt.Errorf("%w: %w", kind, err)
		}
		return fmt.Errorf("%w: %w", ErrBackendUnexpected, err)
	}

	for _, kind := range knownKinds {
		if errors.Is(err, kind) {
			return err
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrBackendUnexpected, err)
}

// isCodeError reports whether err is one of the one-time code failures.
func isCodeError(err error) bool {
	return errors.Is(err, ErrCodeInvalid) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrCodeAlreadyUsed)
}
