// Package otel binds a [relayauth.Controller] observation to OpenTelemetry
// instruments.
//
// Counters become Int64ObservableCounters. The flow state is one gauge with a
// "state" attribute per state, and backend latency is a cumulative bucket
// gauge with an "le" attribute plus a count gauge.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate controller state.
package otel
