// Package stores provides the Redis-backed records behind the reference
// identity backend: one-time code challenges and refresh sessions.
//
// # Design
//
// Each store persists a versioned, binary-encoded record with a TTL.
// Mutations that must be atomic (code consumption, refresh rotation) run as
// Lua scripts so that concurrent submissions cannot both succeed.
//
// Code records outlive their code expiry by a retention period and are marked
// used rather than deleted. This is what lets callers tell an expired or
// already-used code apart from a wrong one.
//
// # What this package must NOT do
//
//   - Import relayauth, backend or any sibling internal package.
//   - Log or expose plaintext codes or refresh secrets.
package stores
