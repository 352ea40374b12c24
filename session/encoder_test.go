package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"
)

func sampleSession() *Session {
	return &Session{
		SessionID:    "0b5c7f0e-sid",
		UserID:       "user-42",
		Email:        "sam@example.com",
		Scope:        ScopeRecovery,
		AccessToken:  strings.Repeat("a", 900),
		RefreshToken: "rt.secret",
		IssuedAt:     1767261600,
		ExpiresAt:    1767265200,
	}
}

func TestEncodeDecodePreservesEveryField(t *testing.T) {
	in := sampleSession()
	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if raw[0] != formatVersionCurrent {
		t.Fatalf("expected version byte %d, got %d", formatVersionCurrent, raw[0])
	}

	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *out != *in {
		t.Fatalf("mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestDecodeV1DefaultsToFullScope(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(formatVersionV1)
	for _, v := range []string{"sid", "uid", "u@x.com"} {
		buf.WriteByte(byte(len(v)))
		buf.WriteString(v)
	}
	for _, v := range []string{"access", "refresh"} {
		_ = binary.Write(&buf, binary.BigEndian, uint16(len(v)))
		buf.WriteString(v)
	}
	_ = binary.Write(&buf, binary.BigEndian, int64(10))
	_ = binary.Write(&buf, binary.BigEndian, int64(20))

	s, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode v1: %v", err)
	}
	if s.Scope != ScopeFull {
		t.Fatalf("expected v1 record to decode as full scope, got %v", s.Scope)
	}
	if s.AccessToken != "access" || s.ExpiresAt != 20 {
		t.Fatalf("unexpected v1 decode: %+v", s)
	}
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Fatal("expected error for nil session")
	}

	s := sampleSession()
	s.Scope = 0
	if _, err := Encode(s); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}

	s = sampleSession()
	s.Email = strings.Repeat("e", 256)
	if _, err := Encode(s); !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("expected ErrFieldTooLong, got %v", err)
	}
}

func TestDecodeRejectsCorruptRecords(t *testing.T) {
	raw, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	cases := map[string][]byte{
		"empty":           {},
		"unknown version": append([]byte{9}, raw[1:]...),
		"bad scope":       append([]byte{formatVersionCurrent, 7}, raw[2:]...),
		"truncated":       raw[:len(raw)-3],
		"trailing bytes":  append(append([]byte{}, raw...), 0x00),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(data); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestSessionHelpers(t *testing.T) {
	var nilSession *Session
	if nilSession.IsFull() || nilSession.IsRecovery() {
		t.Fatal("nil session must not report any scope")
	}
	if !nilSession.Expired(time.Now()) {
		t.Fatal("nil session counts as expired")
	}

	s := &Session{Scope: ScopeFull, ExpiresAt: 100}
	if !s.IsFull() || s.IsRecovery() {
		t.Fatal("expected full scope")
	}
	if s.Expired(time.Unix(99, 0)) {
		t.Fatal("not yet expired")
	}
	if !s.Expired(time.Unix(100, 0)) {
		t.Fatal("expired at ExpiresAt")
	}

	c := s.Clone()
	c.Email = "changed"
	if s.Email == "changed" {
		t.Fatal("Clone must not alias")
	}

	if ParseScope(ScopeRecovery.String()) != ScopeRecovery || ParseScope("nope") != 0 {
		t.Fatal("ParseScope mismatch")
	}
}
