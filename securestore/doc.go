// Package securestore persists small secrets such as the serialized session
// bundle.
//
// [Memory] keeps values in process memory. [File] encrypts each value with
// XChaCha20-Poly1305 into its own file. The key comes from a [KeyProvider]
// (a platform keystore, HSM or TPM wrapper) when one is available; otherwise
// [Open] derives it from a passphrase with argon2id. The passphrase mode is
// the weaker of the two and Open logs a warning when it falls back to it.
//
// # On-disk format
//
// The store directory holds a header file and one file per key:
//
//	store.hdr:  magic "RSS1" | mode(1) | salt(16) | nonce(24) | check tag(16)
//	<sha256(key)>.sec: magic "RSV1" | nonce(24) | ciphertext
//
// The check tag seals an empty value so a wrong key is reported by Open
// rather than by the first Get. Every value is sealed with its key name as
// associated data, so a file copied under another name does not decrypt.
//
// # What this package must NOT do
//
//   - Import relayauth; it is a leaf dependency of the client.
//   - Write plaintext to disk, even temporarily.
package securestore
