package relayauth

// States lists every flow state in declaration order.
var States = []State{
	StateUnauthenticated,
	StateSignupOTPSent,
	StateLoginBlocked,
	StateResetOTPSent,
	StateResetSessionActive,
	StateAuthenticated,
}

// Observation is a point-in-time reading of a Controller for exporters.
type Observation struct {
	// MetricsEnabled is false when the Controller was built without
	// metrics; Metrics is then empty.
	MetricsEnabled bool
	Metrics        MetricsSnapshot
	State          State

	// LimiterKeys is the number of identity/action windows held in memory and
	// LimiterEvicted how many were dropped to stay under the key bound.
	LimiterKeys    int
	LimiterEvicted uint64

	// LockedIdentities counts identities under an advisory lock.
	LockedIdentities int

	AuditDropped uint64
}

// Observe gathers the current Observation.
func (c *Controller) Observe() Observation {
	return Observation{
		MetricsEnabled:   c.metrics.Enabled(),
		Metrics:          c.MetricsSnapshot(),
		State:            c.State(),
		LimiterKeys:      c.limiter.Len(),
		LimiterEvicted:   c.limiter.Evicted(),
		LockedIdentities: c.tracker.Locked(),
		AuditDropped:     c.AuditDropped(),
	}
}
