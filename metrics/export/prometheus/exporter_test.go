package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/metrics/export/internaldefs"
	"github.com/MrEthical07/relayauth/securestore"
)

// nopBackend is never called; Build only needs a value.
type nopBackend struct{ relayauth.IdentityBackend }

func (nopBackend) Subscribe(func(relayauth.SessionEvent)) func() { return func() {} }

type fakeSource struct {
	obs relayauth.Observation
}

func (f fakeSource) Observe() relayauth.Observation { return f.obs }

func enabled() relayauth.Observation {
	return relayauth.Observation{
		MetricsEnabled: true,
		Metrics: relayauth.MetricsSnapshot{
			Counters:   map[relayauth.MetricID]uint64{},
			Histograms: map[relayauth.MetricID][]uint64{},
		},
	}
}

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewFromSource(fakeSource{obs: relayauth.Observation{State: relayauth.StateAuthenticated}})
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderCountersAndLatency(t *testing.T) {
	obs := enabled()
	obs.Metrics.Counters[relayauth.MetricLoginFailure] = 5
	obs.Metrics.Counters[relayauth.MetricLockoutTriggered] = 1
	obs.Metrics.Histograms[relayauth.MetricBackendLatency] = []uint64{4, 3, 2, 1, 0, 0, 0, 1}
	obs.AuditDropped = 2

	out := NewFromSource(fakeSource{obs: obs}).Render()

	for _, want := range []string{
		"relayauth_login_failure_total 5",
		"relayauth_lockout_triggered_total 1",
		"relayauth_login_success_total 0",
		"# TYPE relayauth_backend_latency_seconds histogram",
		`relayauth_backend_latency_seconds_bucket{le="0.05"} 4`,
		`relayauth_backend_latency_seconds_bucket{le="0.5"} 10`,
		`relayauth_backend_latency_seconds_bucket{le="2.5"} 10`,
		`relayauth_backend_latency_seconds_bucket{le="+Inf"} 11`,
		"relayauth_backend_latency_seconds_count 11",
		"relayauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestRenderFlowStateAndOccupancy(t *testing.T) {
	obs := enabled()
	obs.State = relayauth.StateLoginBlocked
	obs.LimiterKeys = 7
	obs.LimiterEvicted = 3
	obs.LockedIdentities = 1

	out := NewFromSource(fakeSource{obs: obs}).Render()

	for _, want := range []string{
		"# TYPE relayauth_flow_state gauge",
		`relayauth_flow_state{state="LOGIN_BLOCKED"} 1`,
		`relayauth_flow_state{state="AUTHENTICATED"} 0`,
		"# TYPE relayauth_limiter_keys gauge",
		"relayauth_limiter_keys 7",
		"relayauth_limiter_evicted_total 3",
		"relayauth_locked_identities 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "relayauth_flow_state{"); n != len(relayauth.States) {
		t.Fatalf("expected one state series per state, got %d", n)
	}
}

func TestRenderListsEveryCounter(t *testing.T) {
	out := NewFromSource(fakeSource{obs: enabled()}).Render()

	for _, c := range internaldefs.Counters {
		if !strings.Contains(out, "# TYPE "+c.Name+" counter") {
			t.Fatalf("counter %s not rendered", c.Name)
		}
	}
}

func TestRenderFromController(t *testing.T) {
	c, err := relayauth.New().
		WithBackend(nopBackend{}).
		WithStorage(securestore.NewMemory()).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	out := New(c).Render()
	if !strings.Contains(out, `relayauth_flow_state{state="UNAUTHENTICATED"} 1`) {
		t.Fatalf("controller state not exported:\n%s", out)
	}
	if New(nil).Render() != "" {
		t.Fatal("nil controller must render nothing")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	obs := enabled()
	obs.Metrics.Counters[relayauth.MetricSignOut] = 1
	exp := NewFromSource(fakeSource{obs: obs})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); got != contentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "relayauth_sign_out_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}

func TestNilExporterRendersNothing(t *testing.T) {
	var exp *Exporter
	if exp.Render() != "" {
		t.Fatal("nil exporter must render nothing")
	}
}

func BenchmarkRender(b *testing.B) {
	obs := enabled()
	for _, c := range internaldefs.Counters {
		obs.Metrics.Counters[c.ID] = 100
	}
	obs.Metrics.Histograms[relayauth.MetricBackendLatency] = []uint64{10, 20, 30, 40, 50, 60, 70, 80}
	exp := NewFromSource(fakeSource{obs: obs})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
