package relayauth

import (
	"context"
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricLoginFailure)
		}
	})
}

func BenchmarkMetricsObserveBackend(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		d := 120 * time.Millisecond
		for pb.Next() {
			m.ObserveBackend(d)
		}
	})
}

func BenchmarkMetricsSnapshot(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	for i := 0; i < 100; i++ {
		m.Inc(MetricTransition)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}

func BenchmarkSubmitLoginInvalidCredentials(b *testing.B) {
	clock := newFakeClock()
	backend := newFakeBackend(clock.Now)
	backend.addAccount("user@x.com", strongPassword, true)

	cfg := DefaultConfig()
	cfg.Lockout.Enabled = false
	cfg.RateLimit.Login = RateLimitPolicy{MaxAttempts: 1 << 30, Window: time.Hour, BlockDuration: time.Hour}

	c, err := New().
		WithConfig(cfg).
		WithBackend(backend).
		WithStorage(newMemStorage()).
		WithClock(clock.Now).
		Build()
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.SubmitLogin(ctx, "user@x.com", "wrong")
	}
}
