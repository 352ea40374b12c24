// Package password hashes account passwords with Argon2id and derives
// symmetric keys from passphrases with the same primitive.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsUpgrade] reports whether a stored hash was produced with
// weaker parameters so the caller can re-hash after the next successful
// sign-in.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Enforce password strength rules; those belong to the client policy.
//   - Log plaintext passwords.
package password
