// Package limiters provides the Redis-backed throttles enforced by the
// reference identity backend.
//
// # Limiters
//
//   - [LockoutLimiter]: counts failed sign-ins per identity and locks the
//     identity for a fixed duration once the threshold is reached.
//   - [RequestLimiter]: fixed-window throttle per action and identity for
//     sign-up, code issuance and password reset requests.
//
// These are the server-side counterparts of the client's advisory limits. A
// client that skips its own checks still hits these.
//
// All limiters are nil-safe: calling any method on a nil receiver allows.
//
// # What this package must NOT do
//
//   - Import relayauth or any sibling internal package.
//   - Make policy decisions beyond counting; the backend decides consequences.
package limiters
