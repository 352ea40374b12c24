package relayauth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/relayauth/internal/audit"
	internalmetrics "github.com/MrEthical07/relayauth/internal/metrics"
	"github.com/MrEthical07/relayauth/session"
)

// OTPKind selects one of the two one-time code namespaces.
type OTPKind string

const (
	OTPSignup   OTPKind = "signup"
	OTPRecovery OTPKind = "recovery"
)

// Profile is the account data shown once signed in.
type Profile struct {
	UserID        string
	Email         string
	Phone         string
	FullName      string
	EmailVerified bool
	CreatedAt     time.Time
}

// SignUpInput is what the signup screen collects.
type SignUpInput struct {
	Email    string
	Password string
	Phone    string
	FullName string
}

// PendingVerification is a signup waiting for its code. It only becomes a
// session through code confirmation for the same Email.
type PendingVerification struct {
	Email  string
	Phone  string
	UserID string
}

// SessionEventKind classifies backend session notifications.
type SessionEventKind uint8

const (
	SessionSignedIn SessionEventKind = iota + 1
	SessionSignedOut
	SessionTokenRefreshed
	SessionRefreshFailed
)

func (k SessionEventKind) String() string {
	switch k {
	case SessionSignedIn:
		return "signed_in"
	case SessionSignedOut:
		return "signed_out"
	case SessionTokenRefreshed:
		return "token_refreshed"
	case SessionRefreshFailed:
		return "refresh_failed"
	default:
		return "unknown"
	}
}

// SessionEvent is pushed by the backend when the session changes outside a
// direct call, e.g. a background token refresh.
type SessionEvent struct {
	Kind    SessionEventKind
	Session *session.Session
}

// IdentityBackend is the remote identity service. Implementations report
// failures as *BackendError so codes can be mapped; anything else is treated
// as unexpected or, for net.Error, as a network failure.
type IdentityBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error)
	SignUp(ctx context.Context, in SignUpInput) (PendingVerification, error)
	VerifyOTP(ctx context.Context, kind OTPKind, email, code string) (*session.Session, error)
	ResendOTP(ctx context.Context, kind OTPKind, email string) error
	ResetPasswordForEmail(ctx context.Context, email string) error
	// UpdatePassword requires the current session; a recovery session is
	// promoted to a full one in the returned session.
	UpdatePassword(ctx context.Context, current *session.Session, newPassword string) (*session.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*session.Session, error)
	SignOut(ctx context.Context, current *session.Session) error
	GetProfile(ctx context.Context, current *session.Session) (*Profile, error)
	// Subscribe registers fn for session events and returns its cancel func.
	Subscribe(fn func(SessionEvent)) (unsubscribe func())
}

// SecureStorage persists the serialized session. Get returns (nil, nil) for
// a missing key.
type SecureStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Reachability reports whether the device is online.
type Reachability interface {
	Online() bool
}

// ReachabilityFunc adapts a function to Reachability.
type ReachabilityFunc func() bool

func (f ReachabilityFunc) Online() bool { return f() }

// AlwaysOnline is the default Reachability.
var AlwaysOnline Reachability = ReachabilityFunc(func() bool { return true })

// AuditEvent is a structured audit record emitted by the Controller.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an io.Writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs events through log/slog.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a counter or the latency histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess          = internalmetrics.MetricLoginSuccess
	MetricLoginFailure          = internalmetrics.MetricLoginFailure
	MetricLoginEmailNotVerified = internalmetrics.MetricLoginEmailNotVerified
	MetricLockoutTriggered      = internalmetrics.MetricLockoutTriggered
	MetricLockoutDenied         = internalmetrics.MetricLockoutDenied
	MetricRateLimitHit          = internalmetrics.MetricRateLimitHit
	MetricSignupSubmitted       = internalmetrics.MetricSignupSubmitted
	MetricCodeVerifySuccess     = internalmetrics.MetricCodeVerifySuccess
	MetricCodeVerifyFailure     = internalmetrics.MetricCodeVerifyFailure
	MetricCodeResent            = internalmetrics.MetricCodeResent
	MetricResetRequested        = internalmetrics.MetricResetRequested
	MetricResetCodeVerified     = internalmetrics.MetricResetCodeVerified
	MetricPasswordUpdated       = internalmetrics.MetricPasswordUpdated
	MetricRecoveryInvalidated   = internalmetrics.MetricRecoveryInvalidated
	MetricSessionRestored       = internalmetrics.MetricSessionRestored
	MetricSessionRefreshed      = internalmetrics.MetricSessionRefreshed
	MetricSessionEnded          = internalmetrics.MetricSessionEnded
	MetricSignOut               = internalmetrics.MetricSignOut
	MetricTransition            = internalmetrics.MetricTransition
	MetricNetworkUnavailable    = internalmetrics.MetricNetworkUnavailable
	MetricBackendUnexpected     = internalmetrics.MetricBackendUnexpected
	MetricBackendLatency        = internalmetrics.MetricBackendLatency
)

// Metrics holds atomic counters and the optional backend latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics. When cfg.Enabled is false every call is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
