// Package relayauth orchestrates client-side authentication for the Relay
// marketplace app: signup with email code verification, password login
// with brute-force defences, and password reset through a restricted
// recovery session.
//
// The [Controller] is the single auth-flow state machine. Screens subscribe
// to its [Transition] stream and route with [RouteFor]. The Controller owns
// an in-memory rate limiter and an advisory lockout tracker, both created by
// [Builder.Build] and never shared between Controllers.
//
// # Architecture boundaries
//
// relayauth is the public surface: [Controller], [SessionManager], [Builder],
// [Config] and the error taxonomy in errors.go. Limiter, lockout, audit and
// metrics storage live under internal/. The identity service is reached only
// through [IdentityBackend]; a reference implementation lives in package
// backend.
//
// # What this package must NOT do
//
//   - Show backend error text to users; [UserMessage] is the only translation.
//   - Count an unverified-email login against the lockout.
//   - Persist limiter or lockout state across restarts.
//   - Import any sub-package that re-imports relayauth.
package relayauth
