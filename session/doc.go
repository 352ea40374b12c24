// Package session defines the token bundle a client holds after signing in and
// the compact binary encoding used to persist it in secure storage.
//
// # Scope
//
// A [Session] is either a full session, which unlocks the application, or a
// recovery session, which the identity backend issues after a password-reset
// code is verified and which only authorizes setting a new password. Code
// that routes users must check [Session.Scope] rather than assume any
// non-nil session is fully authenticated.
//
// # Binary encoding
//
// Sessions are stored as a versioned binary record. Version 1 carried no
// scope byte and always decodes as [ScopeFull]. The encoder only writes the
// current version.
//
// # What this package must NOT do
//
//   - Import relayauth or backend (no upward imports).
//   - Talk to storage or the network.
//   - Decide whether a session may be used; that belongs to the SessionManager.
package session
