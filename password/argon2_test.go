package password

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      minMemoryKB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newHasher(t, fastConfig())

	hash, err := h.Hash("Tr0ub4dor&3")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Verify("Tr0ub4dor&3", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify("tr0ub4dor&3", hash)
	if err != nil || ok {
		t.Fatalf("expected wrong password to fail, ok=%v err=%v", ok, err)
	}
}

func TestHashSaltsDiffer(t *testing.T) {
	h := newHasher(t, fastConfig())
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Fatal("two hashes of one password must use different salts")
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newHasher(t, fastConfig())
	hash, err := weak.Hash("upgrade-me")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if up, err := weak.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("same parameters must not need upgrade, up=%v err=%v", up, err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	if up, err := newHasher(t, stronger).NeedsUpgrade(hash); err != nil || !up {
		t.Fatalf("expected upgrade for higher time cost, up=%v err=%v", up, err)
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := newHasher(t, fastConfig())
	good, _ := h.Hash("version-test")

	cases := map[string]string{
		"not phc":       "not-a-phc-hash",
		"wrong algo":    strings.Replace(good, "argon2id", "argon2i", 1),
		"wrong version": strings.Replace(good, "$v=19$", "$v=18$", 1),
		"weak memory":   strings.Replace(good, "m=8192", "m=16", 1),
		"extra param":   strings.Replace(good, "p=1", "p=1,x=2", 1),
	}
	for name, hash := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := h.Verify("version-test", hash); !errors.Is(err, ErrMalformedHash) {
				t.Fatalf("expected ErrMalformedHash, got %v", err)
			}
		})
	}
}

func TestHashLengthBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxPasswordBytes = 64
	h := newHasher(t, cfg)

	if _, err := h.Hash(""); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort for empty, got %v", err)
	}
	if _, err := h.Hash("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	exact := strings.Repeat("b", 64)
	hash, err := h.Hash(exact)
	if err != nil {
		t.Fatalf("expected max-length password to hash: %v", err)
	}
	if _, err := h.Verify(strings.Repeat("c", 65), hash); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected Verify to reject long input, got %v", err)
	}
}

func TestDefaultMaxPasswordBytesApplied(t *testing.T) {
	h := newHasher(t, fastConfig())
	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected password > %d bytes to be rejected", DefaultMaxPasswordBytes)
	}
}

func TestDeriveKeyIsDeterministicPerSalt(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, 16)
	other := bytes.Repeat([]byte{2}, 16)

	k1, err := DeriveKey([]byte("passphrase"), salt, fastConfig(), 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, _ := DeriveKey([]byte("passphrase"), salt, fastConfig(), 32)
	k3, _ := DeriveKey([]byte("passphrase"), other, fastConfig(), 32)

	if len(k1) != 32 || !bytes.Equal(k1, k2) {
		t.Fatal("same passphrase and salt must derive the same key")
	}
	if bytes.Equal(k1, k3) {
		t.Fatal("different salts must derive different keys")
	}
	if _, err := DeriveKey(nil, salt, fastConfig(), 32); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
	if _, err := DeriveKey([]byte("p"), []byte("short"), fastConfig(), 32); err == nil {
		t.Fatal("expected error for short salt")
	}
}
