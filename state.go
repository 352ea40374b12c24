package relayauth

import (
	"fmt"
	"time"
)

// State is the single auth-flow state screens subscribe to.
type State uint8

const (
	StateUnauthenticated State = iota
	StateSignupOTPSent
	StateLoginBlocked
	StateResetOTPSent
	StateResetSessionActive
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateSignupOTPSent:
		return "SIGNUP_OTP_SENT"
	case StateLoginBlocked:
		return "LOGIN_BLOCKED"
	case StateResetOTPSent:
		return "RESET_OTP_SENT"
	case StateResetSessionActive:
		return "RESET_SESSION_ACTIVE"
	case StateAuthenticated:
		return "AUTHENTICATED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// InAuthFlow reports whether s still belongs to the auth screens. The reset
// states count even though a recovery session may exist.
func (s State) InAuthFlow() bool {
	return s != StateAuthenticated
}

// Event drives one transition.
type Event uint8

const (
	EventSignupSubmitted Event = iota + 1
	EventCodeVerified
	EventCodeRejected
	EventCodeResent
	EventLoginSucceeded
	EventLoginFailed
	EventEmailNotVerified
	EventLockoutReached
	EventResetRequested
	EventResetCodeVerified
	EventPasswordUpdated
	EventRecoveryInvalidated
	EventSignedOut
	EventSessionEnded
	EventSessionRestored
	EventRecoveryRestored
	EventCancelled
)

var eventNames = map[Event]string{
	EventSignupSubmitted:     "signup_submitted",
	EventCodeVerified:        "code_verified",
	EventCodeRejected:        "code_rejected",
	EventCodeResent:          "code_resent",
	EventLoginSucceeded:      "login_succeeded",
	EventLoginFailed:         "login_failed",
	EventEmailNotVerified:    "email_not_verified",
	EventLockoutReached:      "lockout_reached",
	EventResetRequested:      "reset_requested",
	EventResetCodeVerified:   "reset_code_verified",
	EventPasswordUpdated:     "password_updated",
	EventRecoveryInvalidated: "recovery_invalidated",
	EventSignedOut:           "signed_out",
	EventSessionEnded:        "session_ended",
	EventSessionRestored:     "session_restored",
	EventRecoveryRestored:    "recovery_restored",
	EventCancelled:           "cancelled",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

type edge struct {
	from  State
	event Event
}

// transitions is the only place states change.
var transitions = map[edge]State{
	{StateUnauthenticated, EventSignupSubmitted}:  StateSignupOTPSent,
	{StateUnauthenticated, EventLoginSucceeded}:   StateAuthenticated,
	{StateUnauthenticated, EventLoginFailed}:      StateUnauthenticated,
	{StateUnauthenticated, EventEmailNotVerified}: StateSignupOTPSent,
	{StateUnauthenticated, EventLockoutReached}:   StateLoginBlocked,
	{StateUnauthenticated, EventResetRequested}:   StateResetOTPSent,
	{StateUnauthenticated, EventSessionRestored}:  StateAuthenticated,
	{StateUnauthenticated, EventRecoveryRestored}: StateResetSessionActive,

	{StateSignupOTPSent, EventCodeVerified}: StateAuthenticated,
	{StateSignupOTPSent, EventCodeRejected}: StateSignupOTPSent,
	{StateSignupOTPSent, EventCodeResent}:   StateSignupOTPSent,
	{StateSignupOTPSent, EventCancelled}:    StateUnauthenticated,

	{StateLoginBlocked, EventResetRequested}:   StateResetOTPSent,
	{StateLoginBlocked, EventLoginSucceeded}:   StateAuthenticated,
	{StateLoginBlocked, EventLoginFailed}:      StateUnauthenticated,
	{StateLoginBlocked, EventEmailNotVerified}: StateSignupOTPSent,
	{StateLoginBlocked, EventLockoutReached}:   StateLoginBlocked,
	{StateLoginBlocked, EventCancelled}:        StateUnauthenticated,

	{StateResetOTPSent, EventResetCodeVerified}:   StateResetSessionActive,
	{StateResetOTPSent, EventCodeRejected}:        StateResetOTPSent,
	{StateResetOTPSent, EventCodeResent}:          StateResetOTPSent,
	{StateResetOTPSent, EventRecoveryInvalidated}: StateUnauthenticated,
	{StateResetOTPSent, EventCancelled}:           StateUnauthenticated,

	{StateResetSessionActive, EventPasswordUpdated}:     StateAuthenticated,
	{StateResetSessionActive, EventRecoveryInvalidated}: StateUnauthenticated,
	{StateResetSessionActive, EventSessionEnded}:        StateUnauthenticated,
	{StateResetSessionActive, EventCancelled}:           StateUnauthenticated,

	{StateAuthenticated, EventSignedOut}:    StateUnauthenticated,
	{StateAuthenticated, EventSessionEnded}: StateUnauthenticated,
}

// Next returns the state event leads to from s.
func Next(s State, e Event) (State, error) {
	to, ok := transitions[edge{s, e}]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
	}
	return to, nil
}

// Allowed reports whether e is accepted in s.
func Allowed(s State, e Event) bool {
	_, ok := transitions[edge{s, e}]
	return ok
}

// Transition is delivered to subscribers after every state change,
// self-transitions included.
type Transition struct {
	From       State
	To         State
	Event      Event
	Identity   string
	RetryAfter time.Duration
	At         time.Time
}

// Route names the screen a state renders.
type Route string

const (
	RouteLogin       Route = "login"
	RouteVerifyEmail Route = "verify-email"
	RouteBlocked     Route = "login-blocked"
	RouteResetCode   Route = "reset-code"
	RouteNewPassword Route = "new-password"
	RouteHome        Route = "home"
)

// RouteFor maps s to its screen. Only AUTHENTICATED routes home; the reset
// states keep their screens even while a recovery session is held.
func RouteFor(s State) Route {
	switch s {
	case StateSignupOTPSent:
		return RouteVerifyEmail
	case StateLoginBlocked:
		return RouteBlocked
	case StateResetOTPSent:
		return RouteResetCode
	case StateResetSessionActive:
		return RouteNewPassword
	case StateAuthenticated:
		return RouteHome
	default:
		return RouteLogin
	}
}
