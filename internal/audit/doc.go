// Package audit dispatches auth-flow audit events to pluggable sinks.
//
// # Components
//
//   - [Sink] is implemented by the channel, JSON writer, slog and no-op sinks.
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event] is one record: state transition, local denial or session end.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. It does NOT decide which events
// to emit; the relayauth Controller does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import relayauth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
