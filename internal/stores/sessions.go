package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionRecordVersionV1 = 1

var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionRefreshReuse     = errors.New("refresh token reuse detected")
	ErrSessionRedisUnavailable = errors.New("session redis unavailable")
)

// rotateRefreshLua swaps the refresh hash of a session if the presented one
// matches. A mismatch means an old refresh token was replayed; the session
// is deleted.
// KEYS[1] = session key
// ARGV[1] = presented hash (32 bytes)
// ARGV[2] = new hash (32 bytes)
// ARGV[3] = new expiresAt (unix)
// ARGV[4] = ttl in milliseconds
//
// Layout: version(1) scope(1) expiresAt(8) refreshHash(32) ...
var rotateRefreshLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
if string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local stored = string.sub(data, 11, 42)
if stored ~= ARGV[1] then
  redis.call('DEL', KEYS[1])
  return {err='reuse'}
end

local exp = tonumber(ARGV[3])
local expBytes = {}
for i = 8, 1, -1 do
  expBytes[i] = exp % 256
  exp = math.floor(exp / 256)
end

local newData = string.sub(data, 1, 2) ..
  string.char(expBytes[1], expBytes[2], expBytes[3], expBytes[4], expBytes[5], expBytes[6], expBytes[7], expBytes[8]) ..
  ARGV[2] .. string.sub(data, 43)
redis.call('SET', KEYS[1], newData, 'PX', ARGV[4])
return newData
`)

// SessionRecord is the server-side half of a refresh token.
type SessionRecord struct {
	SessionID   string
	UserID      string
	Email       string
	Scope       uint8
	RefreshHash [32]byte
	ExpiresAt   int64
}

// SessionStore keeps refresh sessions and a per-user index of them.
type SessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(redisClient redis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "ras"
	}
	return &SessionStore{redis: redisClient, prefix: prefix}
}

func (s *SessionStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *SessionStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save writes record with ttl and indexes it under its user.
func (s *SessionStore) Save(ctx context.Context, record *SessionRecord, ttl time.Duration) error {
	encoded, err := encodeSessionRecord(record)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(record.SessionID), encoded, ttl)
		p.SAdd(ctx, s.userKey(record.UserID), record.SessionID)
		p.Expire(ctx, s.userKey(record.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionRedisUnavailable, err)
	}
	return nil
}

// Get loads a session by id.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*SessionRecord, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionRedisUnavailable, err)
	}
	rec, err := decodeSessionRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionRedisUnavailable, err)
	}
	rec.SessionID = sessionID
	return rec, nil
}

// Rotate replaces the refresh hash when presented matches the stored one.
func (s *SessionStore) Rotate(ctx context.Context, sessionID string, presented, next [32]byte, expiresAt time.Time, ttl time.Duration) (*SessionRecord, error) {
	result, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(sessionID)},
		string(presented[:]),
		string(next[:]),
		expiresAt.Unix(),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrSessionNotFound
		case "reuse":
			return nil, ErrSessionRefreshReuse
		default:
			return nil, fmt.Errorf("%w: %v", ErrSessionRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrSessionRedisUnavailable)
	}
	rec, err := decodeSessionRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionRedisUnavailable, err)
	}
	if subtle.ConstantTimeCompare(rec.RefreshHash[:], next[:]) != 1 {
		return nil, ErrSessionRefreshReuse
	}
	rec.SessionID = sessionID
	return rec, nil
}

// Delete removes one session. Deleting a missing session is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	rec, err := s.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key(sessionID))
		p.SRem(ctx, s.userKey(rec.UserID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser revokes every session of userID and returns how many
// session keys were removed.
func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}

	removed := 0
	if len(keys) > 0 {
		n, err := s.redis.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrSessionRedisUnavailable, err)
		}
		removed = int(n)
	}
	if err := s.redis.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrSessionRedisUnavailable, err)
	}
	return removed, nil
}

func encodeSessionRecord(record *SessionRecord) ([]byte, error) {
	if len(record.UserID) > 65535 || len(record.Email) > 65535 {
		return nil, errors.New("session record field too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(sessionRecordVersionV1)
	buf.WriteByte(record.Scope)
	_ = binary.Write(&buf, binary.BigEndian, record.ExpiresAt)
	buf.Write(record.RefreshHash[:])
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID)))
	buf.WriteString(record.UserID)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(record.Email)))
	buf.WriteString(record.Email)
	return buf.Bytes(), nil
}

func decodeSessionRecord(data []byte) (*SessionRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	rec := &SessionRecord{}
	if rec.Scope, err = reader.ReadByte(); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &rec.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, rec.RefreshHash[:]); err != nil {
		return nil, err
	}
	if rec.UserID, err = readString16(reader); err != nil {
		return nil, err
	}
	if rec.Email, err = readString16(reader); err != nil {
		return nil, err
	}
	return rec, nil
}

func readString16(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
