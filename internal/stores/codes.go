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

const (
	codeRecordVersionV1 = 1

	codeStatusLive = 0
	codeStatusUsed = 1
)

var (
	ErrCodeNotFound         = errors.New("code record not found")
	ErrCodeExpired          = errors.New("code expired")
	ErrCodeUsed             = errors.New("code already used")
	ErrCodeMismatch         = errors.New("code mismatch")
	ErrCodeAttemptsExceeded = errors.New("code attempts exceeded")
	ErrCodeRedisUnavailable = errors.New("code store redis unavailable")
)

// consumeCodeLua atomically validates a submitted code against its record.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = max attempts
// ARGV[3] = current unix timestamp
//
// Layout: version(1) status(1) attempts(2) expiresAt(8) issuedAt(8)
// userIDLen(2) userID hash(32), big endian.
//
// Returns the record bytes on success, otherwise one of the errors
// "not_found", "used", "expired", "attempts_exceeded", "secret_mismatch".
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

if string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local status = string.byte(data, 2)
local attempts = string.byte(data, 3) * 256 + string.byte(data, 4)

local expiresAt = 0
for i = 5, 12 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

local userIDLen = string.byte(data, 21) * 256 + string.byte(data, 22)
local hashOffset = 23 + userIDLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

local function rewrite(newData)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs > 0 then
    redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  else
    redis.call('SET', KEYS[1], newData)
  end
end

if status == 1 then
  if storedHash == providedHash then
    return {err='used'}
  end
  return {err='secret_mismatch'}
end

if nowUnix > expiresAt then
  return {err='expired'}
end

if attempts >= maxAttempts then
  return {err='attempts_exceeded'}
end

if storedHash ~= providedHash then
  attempts = attempts + 1
  rewrite(string.sub(data, 1, 2) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 5))
  if attempts >= maxAttempts then
    return {err='attempts_exceeded'}
  end
  return {err='secret_mismatch'}
end

rewrite(string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3))
return data
`)

// CodeRecord is one issued one-time code challenge.
type CodeRecord struct {
	UserID    string
	CodeHash  [32]byte
	IssuedAt  int64
	ExpiresAt int64
	Attempts  uint16
	Used      bool
}

// CodeStore keeps one live challenge per namespace and identity. Issuing a
// new code replaces the previous record.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewCodeStore creates a CodeStore. A nil clock means time.Now.
func NewCodeStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *CodeStore {
	if prefix == "" {
		prefix = "rac"
	}
	if now == nil {
		now = time.Now
	}
	return &CodeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (s *CodeStore) key(namespace, identity string) string {
	return s.prefix + ":" + namespace + ":" + identity
}

// Save stores record under namespace/identity for retention. Retention must
// be longer than the code lifetime for expiry to be reported as such.
func (s *CodeStore) Save(ctx context.Context, namespace, identity string, record *CodeRecord, retention time.Duration) error {
	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(namespace, identity), encoded, retention).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

// Get returns the current record without consuming it.
func (s *CodeStore) Get(ctx context.Context, namespace, identity string) (*CodeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(namespace, identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return decodeCodeRecord(data)
}

// Delete removes the record, if any.
func (s *CodeStore) Delete(ctx context.Context, namespace, identity string) error {
	if err := s.redis.Del(ctx, s.key(namespace, identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

// Consume checks providedHash against the stored challenge and marks it used
// on success.
func (s *CodeStore) Consume(ctx context.Context, namespace, identity string, providedHash [32]byte, maxAttempts int) (*CodeRecord, error) {
	result, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.key(namespace, identity)},
		string(providedHash[:]),
		maxAttempts,
		s.now().Unix(),
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrCodeNotFound
		case "used":
			return nil, ErrCodeUsed
		case "expired":
			return nil, ErrCodeExpired
		case "attempts_exceeded":
			return nil, ErrCodeAttemptsExceeded
		case "secret_mismatch":
			return nil, ErrCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrCodeRedisUnavailable)
	}

	record, err := decodeCodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}

	// Lua string equality is not constant-time.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrCodeMismatch
	}

	record.Used = true
	return record, nil
}

func encodeCodeRecord(record *CodeRecord) ([]byte, error) {
	if len(record.UserID) > 65535 {
		return nil, errors.New("code record user id too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(codeRecordVersionV1)
	if record.Used {
		buf.WriteByte(codeStatusUsed)
	} else {
		buf.WriteByte(codeStatusLive)
	}

	_ = binary.Write(&buf, binary.BigEndian, record.Attempts)
	_ = binary.Write(&buf, binary.BigEndian, record.ExpiresAt)
	_ = binary.Write(&buf, binary.BigEndian, record.IssuedAt)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID)))
	buf.WriteString(record.UserID)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*CodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	status, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &CodeRecord{Used: status == codeStatusUsed}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	return record, nil
}
