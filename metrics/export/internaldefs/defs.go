package internaldefs

import (
	"strconv"

	"github.com/MrEthical07/relayauth"
	internalmetrics "github.com/MrEthical07/relayauth/internal/metrics"
)

// Counter binds a core counter to its exported name.
type Counter struct {
	ID   relayauth.MetricID
	Name string
	Help string
}

// Counters lists every core counter in export order.
var Counters = []Counter{
	{ID: relayauth.MetricLoginSuccess, Name: "relayauth_login_success_total", Help: "Successful logins."},
	{ID: relayauth.MetricLoginFailure, Name: "relayauth_login_failure_total", Help: "Logins rejected for invalid credentials."},
	{ID: relayauth.MetricLoginEmailNotVerified, Name: "relayauth_login_email_not_verified_total", Help: "Logins rejected because the email is not verified."},
	{ID: relayauth.MetricLockoutTriggered, Name: "relayauth_lockout_triggered_total", Help: "Advisory lockouts started on this device."},
	{ID: relayauth.MetricLockoutDenied, Name: "relayauth_lockout_denied_total", Help: "Logins refused locally while an identity was locked."},
	{ID: relayauth.MetricRateLimitHit, Name: "relayauth_rate_limit_hit_total", Help: "Operations denied by the local rate limiter."},
	{ID: relayauth.MetricSignupSubmitted, Name: "relayauth_signup_submitted_total", Help: "Accepted signups."},
	{ID: relayauth.MetricCodeVerifySuccess, Name: "relayauth_code_verify_success_total", Help: "Accepted one-time codes."},
	{ID: relayauth.MetricCodeVerifyFailure, Name: "relayauth_code_verify_failure_total", Help: "Rejected one-time codes."},
	{ID: relayauth.MetricCodeResent, Name: "relayauth_code_resent_total", Help: "One-time codes resent."},
	{ID: relayauth.MetricResetRequested, Name: "relayauth_reset_requested_total", Help: "Password reset requests."},
	{ID: relayauth.MetricResetCodeVerified, Name: "relayauth_reset_code_verified_total", Help: "Recovery codes redeemed for a recovery session."},
	{ID: relayauth.MetricPasswordUpdated, Name: "relayauth_password_updated_total", Help: "Password updates completed."},
	{ID: relayauth.MetricRecoveryInvalidated, Name: "relayauth_recovery_invalidated_total", Help: "Recovery sessions abandoned or expired."},
	{ID: relayauth.MetricSessionRestored, Name: "relayauth_session_restored_total", Help: "Sessions restored from secure storage."},
	{ID: relayauth.MetricSessionRefreshed, Name: "relayauth_session_refreshed_total", Help: "Token refreshes adopted."},
	{ID: relayauth.MetricSessionEnded, Name: "relayauth_session_ended_total", Help: "Sessions ended by the backend."},
	{ID: relayauth.MetricSignOut, Name: "relayauth_sign_out_total", Help: "Explicit sign-outs."},
	{ID: relayauth.MetricTransition, Name: "relayauth_transition_total", Help: "Auth-flow state transitions."},
	{ID: relayauth.MetricNetworkUnavailable, Name: "relayauth_network_unavailable_total", Help: "Operations that failed for lack of network."},
	{ID: relayauth.MetricBackendUnexpected, Name: "relayauth_backend_unexpected_total", Help: "Backend errors outside the known taxonomy."},
}

// Reading is a value taken from an Observation outside the counter table.
type Reading struct {
	Name  string
	Help  string
	Value func(relayauth.Observation) int64
}

// Totals only ever grow.
var Totals = []Reading{
	{
		Name:  "relayauth_limiter_evicted_total",
		Help:  "Rate-limit windows evicted to stay under the key bound.",
		Value: func(o relayauth.Observation) int64 { return int64(o.LimiterEvicted) },
	},
	{
		Name:  "relayauth_audit_dropped_total",
		Help:  "Audit events dropped under dispatcher backpressure.",
		Value: func(o relayauth.Observation) int64 { return int64(o.AuditDropped) },
	},
}

// Gauges go up and down.
var Gauges = []Reading{
	{
		Name:  "relayauth_limiter_keys",
		Help:  "Rate-limit windows held in memory.",
		Value: func(o relayauth.Observation) int64 { return int64(o.LimiterKeys) },
	},
	{
		Name:  "relayauth_locked_identities",
		Help:  "Identities under an advisory lock on this device.",
		Value: func(o relayauth.Observation) int64 { return int64(o.LockedIdentities) },
	},
}

// The flow state is published as one series per state, 1 for the current one.
const (
	StateName  = "relayauth_flow_state"
	StateHelp  = "Current auth-flow state (1 for the active state)."
	StateLabel = "state"
)

// StateValue is the series value of s under current.
func StateValue(s, current relayauth.State) int64 {
	if s == current {
		return 1
	}
	return 0
}

const (
	LatencyName  = "relayauth_backend_latency_seconds"
	LatencyHelp  = "Identity backend call latency."
	LatencyLabel = "le"
)

// Bucket is one cumulative latency bucket.
type Bucket struct {
	LE    string
	Count uint64
}

// LatencyBuckets turns per-bucket counts into cumulative buckets labelled in
// seconds. The last bucket is +Inf and carries the total count; missing raw
// entries count as zero.
func LatencyBuckets(raw []uint64) []Bucket {
	out := make([]Bucket, internalmetrics.HistBucketCount)
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i].Count = running
		if i < len(internalmetrics.HistogramBounds) {
			secs := float64(internalmetrics.HistogramBounds[i]) / 1000
			out[i].LE = strconv.FormatFloat(secs, 'g', -1, 64)
		} else {
			out[i].LE = "+Inf"
		}
	}
	return out
}
