package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout for reset records. The token key is a hash holding the
// record; the user key points at the identity's current token hash. Both
// expire with the record.
const (
	resetTokenKeyPrefix = "reset:token:"
	resetUserKeyPrefix  = "reset:user:"
)

// replaceScript drops the identity's previous record and stores the new one
// in a single step.
//
// KEYS[1] user key, KEYS[2] new token key.
// ARGV: token hash, user id, created_at, expires_at, ttl ms, token key prefix.
var replaceScript = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old then
  redis.call('DEL', ARGV[6] .. old)
end
redis.call('HSET', KEYS[2], 'user_id', ARGV[2], 'created_at', ARGV[3], 'expires_at', ARGV[4])
redis.call('PEXPIRE', KEYS[2], ARGV[5])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[5])
return 1
`)

// takeScript reads and deletes a record, and clears the identity pointer if
// it still points at this record.
//
// KEYS[1] token key. ARGV: token hash, user key prefix.
var takeScript = redis.NewScript(`
local vals = redis.call('HGETALL', KEYS[1])
if #vals == 0 then
  return false
end
redis.call('DEL', KEYS[1])
for i = 1, #vals, 2 do
  if vals[i] == 'user_id' then
    local ukey = ARGV[2] .. vals[i + 1]
    if redis.call('GET', ukey) == ARGV[1] then
      redis.call('DEL', ukey)
    end
  end
end
return vals
`)

// deleteByIdentityScript removes an identity's record and pointer.
//
// KEYS[1] user key. ARGV: token key prefix.
var deleteByIdentityScript = redis.NewScript(`
local h = redis.call('GET', KEYS[1])
if h then
  redis.call('DEL', ARGV[1] .. h)
end
redis.call('DEL', KEYS[1])
return 1
`)

// redisResetRepository implements ResetRepository on Redis.
type redisResetRepository struct {
	client *redis.Client
}

// NewRedisResetRepository creates a reset record store on the given client.
func NewRedisResetRepository(client *redis.Client) ResetRepository {
	return &redisResetRepository{client: client}
}

func tokenKey(hash string) string  { return resetTokenKeyPrefix + hash }
func userKey(userID string) string { return resetUserKeyPrefix + userID }

// Replace stores rec as the only record of rec.UserID.
func (r *redisResetRepository) Replace(ctx context.Context, rec ResetRecord) error {
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("reset record for %s has no lifetime", rec.UserID)
	}

	err := replaceScript.Run(ctx, r.client,
		[]string{userKey(rec.UserID), tokenKey(rec.TokenHash)},
		rec.TokenHash,
		rec.UserID,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
		ttl.Milliseconds(),
		resetTokenKeyPrefix,
	).Err()
	if err != nil {
		return fmt.Errorf("replacing reset record: %w", err)
	}
	return nil
}

// Take atomically removes and returns the record with tokenHash.
func (r *redisResetRepository) Take(ctx context.Context, tokenHash string) (*ResetRecord, error) {
	vals, err := takeScript.Run(ctx, r.client,
		[]string{tokenKey(tokenHash)},
		tokenHash,
		resetUserKeyPrefix,
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taking reset record: %w", err)
	}

	fields := make(map[string]string, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		fields[vals[i]] = vals[i+1]
	}
	return parseResetRecord(tokenHash, fields)
}

// FindByHash returns the record with tokenHash without consuming it.
func (r *redisResetRepository) FindByHash(ctx context.Context, tokenHash string) (*ResetRecord, error) {
	fields, err := r.client.HGetAll(ctx, tokenKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading reset record: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrResetNotFound
	}
	return parseResetRecord(tokenHash, fields)
}

// FindByIdentity returns the live record of userID, if any.
func (r *redisResetRepository) FindByIdentity(ctx context.Context, userID string) (*ResetRecord, error) {
	hash, err := r.client.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading reset pointer: %w", err)
	}
	return r.FindByHash(ctx, hash)
}

// DeleteByIdentity removes userID's record. Deleting nothing is not an error.
func (r *redisResetRepository) DeleteByIdentity(ctx context.Context, userID string) error {
	err := deleteByIdentityScript.Run(ctx, r.client,
		[]string{userKey(userID)},
		resetTokenKeyPrefix,
	).Err()
	if err != nil {
		return fmt.Errorf("deleting reset record: %w", err)
	}
	return nil
}

// parseResetRecord builds a record from the stored hash fields.
func parseResetRecord(tokenHash string, fields map[string]string) (*ResetRecord, error) {
	userID := fields["user_id"]
	if userID == "" {
		return nil, fmt.Errorf("reset record %s has no user id", tokenHash)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parsing reset created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("parsing reset expires_at: %w", err)
	}
	return &ResetRecord{
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}
