// Package prometheus renders a [relayauth.Controller] observation in the
// Prometheus text exposition format.
//
// Counters are relayauth_*_total. The flow state is relayauth_flow_state with
// one series per state, limiter and lockout occupancy are plain gauges, and
// backend latency is the relayauth_backend_latency_seconds histogram.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate controller state.
package prometheus
