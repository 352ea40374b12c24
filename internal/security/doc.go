// Package security derives the read-only posture report exposed by
// relayauth.Controller.SecurityReport.
//
// # What this package must NOT do
//
//   - Import relayauth or read live limiter state; it only summarizes configuration.
package security
