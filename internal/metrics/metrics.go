package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one counter slot.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginEmailNotVerified
	MetricLockoutTriggered
	MetricLockoutDenied
	MetricRateLimitHit
	MetricSignupSubmitted
	MetricCodeVerifySuccess
	MetricCodeVerifyFailure
	MetricCodeResent
	MetricResetRequested
	MetricResetCodeVerified
	MetricPasswordUpdated
	MetricRecoveryInvalidated
	MetricSessionRestored
	MetricSessionRefreshed
	MetricSessionEnded
	MetricSignOut
	MetricTransition
	MetricNetworkUnavailable
	MetricBackendUnexpected
	MetricBackendLatency
	MetricIDCount
)

// HistogramBounds are the upper bounds, in milliseconds, of every bucket but
// the last (+Inf).
var HistogramBounds = [HistBucketCount - 1]int64{50, 100, 250, 500, 1000, 2500, 5000}

const (
	HistBucketCount = 8
	cacheLineSize   = 64
)

type histogram struct {
	buckets [HistBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config toggles collection.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds counters and the backend latency histogram.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	latency       histogram
}

// Snapshot is a point-in-time copy.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool        { return m != nil && m.enabled }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.enableLatency }

// Inc adds one to id. Nil or disabled Metrics ignore the call.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// ObserveBackend records one backend call duration.
func (m *Metrics) ObserveBackend(d time.Duration) {
	if m == nil || !m.enableLatency {
		return
	}
	atomic.AddUint64(&m.latency.buckets[BucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if m == nil || !m.enabled {
		return s
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		if id == MetricBackendLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, HistBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.latency.buckets[i])
		}
		s.Histograms[MetricBackendLatency] = buckets
	}
	return s
}

// BucketIndex maps d onto HistogramBounds.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range HistogramBounds {
		if ms <= bound {
			return i
		}
	}
	return HistBucketCount - 1
}
