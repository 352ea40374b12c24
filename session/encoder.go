package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	formatVersionCurrent = 2
	formatVersionV1      = 1
)

var (
	// ErrUnknownVersion is returned when the leading version byte is not recognised.
	ErrUnknownVersion = errors.New("session: unknown encoding version")
	// ErrFieldTooLong is returned when a field exceeds its length prefix.
	ErrFieldTooLong = errors.New("session: field too long")
	// ErrInvalidScope is returned for scope bytes other than full or recovery.
	ErrInvalidScope = errors.New("session: invalid scope")
)

// Encode serializes s into the current binary format.
//
// Layout: version(1) scope(1) sid(1+n) uid(1+n) email(1+n)
// access(2+n) refresh(2+n) issuedAt(8) expiresAt(8), big endian.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("session: nil session")
	}
	if s.Scope != ScopeFull && s.Scope != ScopeRecovery {
		return nil, ErrInvalidScope
	}

	var buf bytes.Buffer
	buf.Grow(64 + len(s.AccessToken) + len(s.RefreshToken))

	buf.WriteByte(formatVersionCurrent)
	buf.WriteByte(byte(s.Scope))

	for _, f := range []struct {
		name, v string
	}{
		{"session id", s.SessionID},
		{"user id", s.UserID},
		{"email", s.Email},
	} {
		if err := writeShort(&buf, f.name, f.v); err != nil {
			return nil, err
		}
	}
	if err := writeLong(&buf, "access token", s.AccessToken); err != nil {
		return nil, err
	}
	if err := writeLong(&buf, "refresh token", s.RefreshToken); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, s.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses data produced by Encode, including version 1 records.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != formatVersionCurrent && version != formatVersionV1 {
		return nil, ErrUnknownVersion
	}

	s := &Session{Scope: ScopeFull}
	if version == formatVersionCurrent {
		scope, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		s.Scope = Scope(scope)
		if s.Scope != ScopeFull && s.Scope != ScopeRecovery {
			return nil, ErrInvalidScope
		}
	}

	if s.SessionID, err = readShort(reader); err != nil {
		return nil, err
	}
	if s.UserID, err = readShort(reader); err != nil {
		return nil, err
	}
	if s.Email, err = readShort(reader); err != nil {
		return nil, err
	}
	if s.AccessToken, err = readLong(reader); err != nil {
		return nil, err
	}
	if s.RefreshToken, err = readLong(reader); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("session: %d trailing bytes", reader.Len())
	}

	return s, nil
}

func writeShort(buf *bytes.Buffer, name, v string) error {
	if len(v) > math.MaxUint8 {
		return fmt.Errorf("%w: %s", ErrFieldTooLong, name)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func writeLong(buf *bytes.Buffer, name, v string) error {
	if len(v) > math.MaxUint16 {
		return fmt.Errorf("%w: %s", ErrFieldTooLong, name)
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(v)))
	buf.Write(n[:])
	buf.WriteString(v)
	return nil
}

func readShort(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	return readN(r, int(n))
}

func readLong(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	return readN(r, int(n))
}

func readN(r *bytes.Reader, n int) (string, error) {
	if n > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
