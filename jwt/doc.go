// Package jwt issues and verifies the access tokens handed out by the reference
// identity backend, and lets clients read the unverified claims of a token
// they hold (expiry and scope) without access to the verification key.
package jwt
