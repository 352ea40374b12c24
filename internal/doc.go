// Package internal contains helpers private to relayauth: random identifiers,
// refresh token encoding and one-time code hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - lockout: advisory in-memory failed-login tracker used by the client
//   - limiters: Redis-backed limiters used by the reference backend
//   - metrics: metric identifiers shared with the exporters
//   - rate: in-memory sliding-window rate limiter used by the client
//   - stores: Redis-backed one-time code and refresh session stores
//
// # What this package must NOT do
//
//   - Export types that appear in the public relayauth API.
//   - Be imported by any package outside the relayauth module.
package internal
