// Package backend is a self-hosted reference implementation of
// relayauth.IdentityBackend.
//
// Accounts live in SQLite with argon2id password hashes. One-time codes,
// refresh sessions and server-side throttles live in Redis. Access tokens
// are JWTs signed by package jwt.
//
// # Flow summary
//
//   - SignUp stores an unverified account and mails a signup code.
//   - VerifyOTP(signup) confirms the email and issues a full session.
//   - SignInWithPassword refuses unverified accounts with email_not_confirmed
//     and counts wrong passwords toward a server-side lockout.
//   - ResetPasswordForEmail mails a recovery code; VerifyOTP(recovery) issues
//     a recovery-scoped session that only UpdatePassword accepts.
//   - UpdatePassword revokes every session of the account and issues a fresh
//     full session.
//
// The lockout here is authoritative. The client-side tracker in relayauth is
// advisory and can be bypassed; this one cannot.
//
// # What this package must NOT do
//
//   - Reveal whether an email is registered from ResendOTP or
//     ResetPasswordForEmail.
//   - Store plaintext codes, passwords or refresh secrets.
//   - Call subscribers from inside a client-initiated call.
package backend
