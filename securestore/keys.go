package securestore

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of every store key.
const KeySize = chacha20poly1305.KeySize

// ErrKeyUnavailable is returned by a KeyProvider that has no key to offer on
// this device. Open treats it as the signal to fall back to a passphrase.
var ErrKeyUnavailable = errors.New("securestore: key provider unavailable")

// KeyProvider supplies a device-bound key, typically unwrapped by a platform
// keystore. Key must return the same KeySize bytes on every call.
type KeyProvider interface {
	Key(ctx context.Context) ([]byte, error)
}

// KeyProviderFunc adapts a function to KeyProvider.
type KeyProviderFunc func(ctx context.Context) ([]byte, error)

func (f KeyProviderFunc) Key(ctx context.Context) ([]byte, error) { return f(ctx) }

// StaticKey is a KeyProvider for a key the caller already holds.
type StaticKey []byte

func (k StaticKey) Key(context.Context) ([]byte, error) {
	if len(k) != KeySize {
		return nil, fmt.Errorf("securestore: static key must be %d bytes, got %d", KeySize, len(k))
	}
	return append([]byte(nil), k...), nil
}

// Unavailable is a KeyProvider for devices without a keystore.
var Unavailable KeyProvider = KeyProviderFunc(func(context.Context) ([]byte, error) {
	return nil, ErrKeyUnavailable
})
