package securestore

import (
	"bytes"
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrEthical07/relayauth/password"
	"golang.org/x/crypto/chacha20poly1305"
)

// Mode records how the key of a File store was obtained.
type Mode uint8

const (
	ModeKeyProvider Mode = 1
	ModePassphrase  Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeKeyProvider:
		return "key_provider"
	case ModePassphrase:
		return "passphrase"
	default:
		return "unknown"
	}
}

var (
	// ErrWrongKey means the key does not open this store.
	ErrWrongKey = errors.New("securestore: wrong key")
	// ErrCorrupt means a value or the header failed authentication or parsing.
	ErrCorrupt = errors.New("securestore: corrupt data")
	// ErrModeMismatch means the store was created with the other key mode.
	ErrModeMismatch = errors.New("securestore: store was created with a different key mode")
	// ErrNoKey means neither a key provider nor a passphrase could supply a key.
	ErrNoKey = errors.New("securestore: no key provider and no passphrase")
)

const (
	headerName  = "store.hdr"
	headerMagic = "RSS1"
	valueMagic  = "RSV1"
	saltSize    = 16
	checkAD     = "relayauth-securestore-check"
)

var headerSize = len(headerMagic) + 1 + saltSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// Options configures Open.
type Options struct {
	Dir string
	// Provider is tried first. Nil is the same as Unavailable.
	Provider KeyProvider
	// Passphrase is the fallback when Provider has no key.
	Passphrase []byte
	// KDF is the argon2id cost for the passphrase. Zero means
	// password.DefaultConfig().
	KDF    password.Config
	Logger *slog.Logger
}

// File is an encrypted directory store. It is safe for concurrent use
// within one process.
type File struct {
	dir  string
	mode Mode
	aead cipher.AEAD
	mu   sync.Mutex
}

// Open opens or creates the store in opts.Dir. The key provider is used
// when it has a key; on ErrKeyUnavailable Open falls back to the passphrase.
// Any other provider error is returned.
func Open(ctx context.Context, opts Options) (*File, error) {
	if opts.Dir == "" {
		return nil, errors.New("securestore: dir is required")
	}
	if opts.Provider == nil {
		opts.Provider = Unavailable
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.KDF == (password.Config{}) {
		opts.KDF = password.DefaultConfig()
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("securestore: create dir: %w", err)
	}

	hdr, err := readHeader(opts.Dir)
	if err != nil {
		return nil, err
	}

	mode := ModeKeyProvider
	key, err := opts.Provider.Key(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrKeyUnavailable):
		if len(opts.Passphrase) == 0 {
			return nil, ErrNoKey
		}
		mode = ModePassphrase
		opts.Logger.Warn("securestore: key provider unavailable, using passphrase-derived key")
	default:
		return nil, fmt.Errorf("securestore: key provider: %w", err)
	}

	if hdr != nil && hdr.mode != mode {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrModeMismatch, hdr.mode, mode)
	}

	var salt []byte
	if hdr != nil {
		salt = hdr.salt
	} else {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, err
		}
	}
	if mode == ModePassphrase {
		key, err = password.DeriveKey(opts.Passphrase, salt, opts.KDF, KeySize)
		if err != nil {
			return nil, fmt.Errorf("securestore: derive key: %w", err)
		}
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("securestore: %w", err)
	}
	f := &File{dir: opts.Dir, mode: mode, aead: aead}

	if hdr == nil {
		if err := f.writeHeader(salt); err != nil {
			return nil, err
		}
		return f, nil
	}
	if _, err := aead.Open(nil, hdr.nonce, hdr.check, []byte(checkAD)); err != nil {
		return nil, ErrWrongKey
	}
	return f, nil
}

// Mode reports how the key was obtained.
func (f *File) Mode() Mode { return f.mode }

// Get returns (nil, nil) for a missing key.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ns := f.aead.NonceSize()
	if len(data) < len(valueMagic)+ns+f.aead.Overhead() || string(data[:len(valueMagic)]) != valueMagic {
		return nil, ErrCorrupt
	}
	data = data[len(valueMagic):]
	plain, err := f.aead.Open(nil, data[:ns], data[ns:], []byte(key))
	if err != nil {
		return nil, ErrCorrupt
	}
	return plain, nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	nonce := make([]byte, f.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString(valueMagic)
	buf.Write(nonce)
	buf.Write(f.aead.Seal(nil, nonce, value, []byte(key)))

	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(f.path(key), buf.Bytes())
}

// Remove deletes key. A missing key is not an error.
func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (f *File) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:])+".sec")
}

type header struct {
	mode  Mode
	salt  []byte
	nonce []byte
	check []byte
}

func readHeader(dir string) (*header, error) {
	data, err := os.ReadFile(filepath.Join(dir, headerName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) != headerSize || string(data[:len(headerMagic)]) != headerMagic {
		return nil, ErrCorrupt
	}
	data = data[len(headerMagic):]
	h := &header{mode: Mode(data[0])}
	if h.mode != ModeKeyProvider && h.mode != ModePassphrase {
		return nil, ErrCorrupt
	}
	data = data[1:]
	h.salt, data = data[:saltSize], data[saltSize:]
	h.nonce, h.check = data[:chacha20poly1305.NonceSizeX], data[chacha20poly1305.NonceSizeX:]
	return h, nil
}

func (f *File) writeHeader(salt []byte) error {
	nonce := make([]byte, f.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString(headerMagic)
	buf.WriteByte(byte(f.mode))
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(f.aead.Seal(nil, nonce, nil, []byte(checkAD)))
	return writeAtomic(filepath.Join(f.dir, headerName), buf.Bytes())
}

// writeAtomic replaces path with data through a temp file and rename.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
