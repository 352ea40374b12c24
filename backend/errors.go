package backend

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/internal/limiters"
	"github.com/MrEthical07/relayauth/internal/stores"
)

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("backend: closed")

func failure(code string, status int, msg string) *relayauth.BackendError {
	return &relayauth.BackendError{Code: code, Status: status, Message: msg}
}

var (
	errInvalidCredentials = failure(relayauth.CodeInvalidCredentials, http.StatusBadRequest, "invalid login credentials")
	errEmailNotConfirmed  = failure(relayauth.CodeEmailNotConfirmed, http.StatusBadRequest, "email not confirmed")
	errUserExists         = failure(relayauth.CodeUserAlreadyExists, http.StatusUnprocessableEntity, "user already registered")
	errSessionNotFound    = failure(relayauth.CodeSessionNotFound, http.StatusUnauthorized, "session not found")
	errSessionExpired     = failure(relayauth.CodeSessionExpired, http.StatusUnauthorized, "access token invalid or expired")
	errRefreshReused      = failure(relayauth.CodeRefreshReused, http.StatusUnauthorized, "refresh token already used")
	errScope              = failure("insufficient_scope", http.StatusForbidden, "session scope does not allow this call")
)

func weakPassword(msg string) *relayauth.BackendError {
	return failure(relayauth.CodeWeakPassword, http.StatusUnprocessableEntity, msg)
}

// limitedError turns a limiter denial into the over_rate_limit wire error.
// Other limiter failures are returned unchanged.
func limitedError(err error) error {
	var le *limiters.LimitedError
	if errors.As(err, &le) {
		return &relayauth.BackendError{
			Code:       relayauth.CodeOverRateLimit,
			Status:     http.StatusTooManyRequests,
			Message:    le.Error(),
			RetryAfter: le.RetryAfter,
		}
	}
	return err
}

// codeError maps a code store failure to its wire error.
func codeError(err error) error {
	switch {
	case errors.Is(err, stores.ErrCodeExpired):
		return failure(relayauth.CodeOTPExpired, http.StatusForbidden, "code has expired")
	case errors.Is(err, stores.ErrCodeAttemptsExceeded):
		return failure(relayauth.CodeOTPExpired, http.StatusForbidden, "too many attempts, request a new code")
	case errors.Is(err, stores.ErrCodeUsed):
		return failure(relayauth.CodeOTPUsed, http.StatusForbidden, "code already used")
	case errors.Is(err, stores.ErrCodeMismatch), errors.Is(err, stores.ErrCodeNotFound):
		return failure(relayauth.CodeOTPInvalid, http.StatusForbidden, "code is invalid")
	default:
		return err
	}
}

// sessionError maps a session store failure to its wire error.
func sessionError(err error) error {
	switch {
	case errors.Is(err, stores.ErrSessionNotFound):
		return errSessionNotFound
	case errors.Is(err, stores.ErrSessionRefreshReuse):
		return errRefreshReused
	default:
		return err
	}
}
