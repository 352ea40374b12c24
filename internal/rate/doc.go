// Package rate provides the in-memory sliding-window limiter that throttles
// authentication actions per identity.
//
// # Window semantics
//
// Each key ("<action>:<identity>") owns one record {attempts, firstAttempt,
// blockedUntil}. The window restarts once it has elapsed since the first
// attempt; exceeding MaxAttempts inside the window blocks the key for
// BlockDuration. Key prefixes used by relayauth:
//   - login: login per identity
//   - signup: account creation per identity
//   - otpResend: code resend per identity
//   - otpVerify: code submission per identity
//   - reset: password reset request per identity
//
// # What this package must NOT do
//
//   - Persist state. Records are process-local and vanish on restart.
//   - Be treated as the authoritative control; the identity backend enforces
//     its own limits.
package rate
