// Package redis provides a Redis-backed tokens.RefreshStore. Rotation
// runs as a Lua script so that verifying, consuming, and replacing a
// record is one atomic step even across service replicas.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/ausweis/pkg/tokens"
)

// Key layout. Each record lives in a hash under rt:<id>; the ids of a
// token family are collected in a set under rtfam:<family>. Both carry
// a TTL matching the newest record's expiry, so abandoned families
// disappear on their own.
const (
	recordKeyPrefix = "rt:"
	familyKeyPrefix = "rtfam:"
)

// Status codes returned by the rotation script.
const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusReused   int64 = 3
	rotateStatusRotated  int64 = 4
)

// rotateScript verifies and consumes the record under KEYS[1] and
// installs its successor.
//
//	ARGV[1] presented secret digest (binary)
//	ARGV[2] successor id
//	ARGV[3] successor secret digest (binary)
//	ARGV[4] now, unix milliseconds
//	ARGV[5] successor expiry, unix milliseconds
//	ARGV[6] successor TTL, milliseconds
//	ARGV[7] record key prefix
//	ARGV[8] family key prefix
//	ARGV[9] presented record id
//
// Replies: {0} unknown, {1} expired, {2} digest mismatch, {3} reused
// (family revoked as a side effect), {4, user_id, username, family} on
// success.
const rotateScript = `
local vals = redis.call("HMGET", KEYS[1], "user_id", "username", "family", "secret_hash", "expires_at", "consumed")
if not vals[1] then
  return {0}
end

local family = vals[3]
local famkey = ARGV[8] .. family

if vals[6] == "1" then
  local members = redis.call("SMEMBERS", famkey)
  for i = 1, #members do
    local key = ARGV[7] .. members[i]
    if redis.call("EXISTS", key) == 1 then
      redis.call("HSET", key, "consumed", "1")
    end
  end
  return {3}
end

if tonumber(vals[5]) <= tonumber(ARGV[4]) then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", famkey, ARGV[9])
  return {1}
end

if vals[4] ~= ARGV[1] then
  return {2}
end

redis.call("HSET", KEYS[1], "consumed", "1")

local nextkey = ARGV[7] .. ARGV[2]
redis.call("HSET", nextkey,
  "user_id", vals[1],
  "username", vals[2],
  "family", family,
  "secret_hash", ARGV[3],
  "expires_at", ARGV[5],
  "consumed", "0")
redis.call("PEXPIRE", nextkey, tonumber(ARGV[6]))
redis.call("SADD", famkey, ARGV[2])
redis.call("PEXPIRE", famkey, tonumber(ARGV[6]))

return {4, vals[1], vals[2], family}
`

var rotateLua = redis.NewScript(rotateScript)

// revokeScript marks every existing record of the family set at KEYS[1]
// consumed. ARGV[1] is the record key prefix. The EXISTS guard keeps
// replies for already-expired members from creating stray keys.
const revokeScript = `
local members = redis.call("SMEMBERS", KEYS[1])
for i = 1, #members do
  local key = ARGV[1] .. members[i]
  if redis.call("EXISTS", key) == 1 then
    redis.call("HSET", key, "consumed", "1")
  end
end
return #members
`

var revokeLua = redis.NewScript(revokeScript)

// Store is a Redis-backed RefreshStore.
type Store struct {
	client redis.UniversalClient

	// now is replaced in tests.
	now func() time.Time
}

var _ tokens.RefreshStore = (*Store)(nil)

// New creates a Store on top of the given Redis client. The client is
// shared, not owned: closing it is the caller's business.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client, now: time.Now}
}

func recordKey(id string) string     { return recordKeyPrefix + id }
func familyKey(family string) string { return familyKeyPrefix + family }
func formatMilli(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func consumedValue(c bool) string {
	if c {
		return "1"
	}
	return "0"
}

// Save persists rec with a TTL running to its expiry.
func (s *Store) Save(ctx context.Context, rec tokens.Record) error {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("refresh record %s is already expired", rec.ID)
	}

	key := recordKey(rec.ID)
	famKey := familyKey(rec.Family)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", rec.UserID,
			"username", rec.Username,
			"family", rec.Family,
			"secret_hash", rec.SecretHash[:],
			"expires_at", formatMilli(rec.ExpiresAt),
			"consumed", consumedValue(rec.Consumed),
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.SAdd(ctx, famKey, rec.ID)
		pipe.PExpire(ctx, famKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving refresh record: %w", err)
	}
	return nil
}

// Rotate redeems the record under id via the rotation script. See
// tokens.RefreshStore for the failure contract.
func (s *Store) Rotate(ctx context.Context, id string, presented [32]byte, next tokens.Record) (tokens.Record, error) {
	now := s.now()
	ttl := next.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return tokens.Record{}, fmt.Errorf("successor record %s is already expired", next.ID)
	}

	result, err := rotateLua.Run(ctx, s.client, []string{recordKey(id)},
		presented[:],
		next.ID,
		next.SecretHash[:],
		now.UnixMilli(),
		next.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
		recordKeyPrefix,
		familyKeyPrefix,
		id,
	).Result()
	if err != nil {
		return tokens.Record{}, fmt.Errorf("rotating refresh record: %w", err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return tokens.Record{}, errors.New("rotation script returned an empty reply")
	}
	code, ok := parts[0].(int64)
	if !ok {
		return tokens.Record{}, fmt.Errorf("rotation script returned status %T", parts[0])
	}

	switch code {
	case rotateStatusNotFound:
		return tokens.Record{}, tokens.ErrTokenNotFound
	case rotateStatusExpired:
		return tokens.Record{}, tokens.ErrTokenExpired
	case rotateStatusMismatch:
		return tokens.Record{}, tokens.ErrSecretMismatch
	case rotateStatusReused:
		return tokens.Record{}, tokens.ErrTokenReused
	case rotateStatusRotated:
		if len(parts) < 4 {
			return tokens.Record{}, errors.New("rotation script returned a short reply")
		}
		var fields [3]string
		for i := 1; i < 4; i++ {
			str, ok := parts[i].(string)
			if !ok {
				return tokens.Record{}, fmt.Errorf("rotation script returned %T at position %d", parts[i], i)
			}
			fields[i-1] = str
		}
		next.UserID, next.Username, next.Family = fields[0], fields[1], fields[2]
		return next, nil
	default:
		return tokens.Record{}, fmt.Errorf("rotation script returned unknown status %d", code)
	}
}

// RevokeFamily marks every live record of the family consumed. Unknown
// families are a no-op.
func (s *Store) RevokeFamily(ctx context.Context, family string) error {
	err := revokeLua.Run(ctx, s.client, []string{familyKey(family)}, recordKeyPrefix).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("revoking token family: %w", err)
	}
	return nil
}

// HealthCheck pings Redis. Used by the readiness endpoint.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
