package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const swapSessionsScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  current = ""
end
if current ~= ARGV[1] then
  return 0
end
if ARGV[2] == "" then
  redis.call("DEL", KEYS[1])
  return 1
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`

var swapSessionsLua = redis.NewScript(swapSessionsScript)

// RedisStore keeps session lists in Redis instead of on the account record.
// Each write refreshes the key TTL, so a list outlives its newest refresh
// token by at most ttl.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a ListStore keyed under prefix. A zero ttl disables expiry.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "hs"
	}
	return &RedisStore{redis: client, prefix: prefix, ttl: ttl}
}

// LoadSessions returns the stored ids, or nil when none are stored.
func (s *RedisStore) LoadSessions(ctx context.Context, accountID string) ([]string, error) {
	raw, err := s.redis.Get(ctx, s.key(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeList(raw)
}

// SwapSessions atomically replaces old with next.
func (s *RedisStore) SwapSessions(ctx context.Context, accountID string, old, next []string) (bool, error) {
	oldRaw, err := encodeList(old)
	if err != nil {
		return false, err
	}
	nextRaw, err := encodeList(next)
	if err != nil {
		return false, err
	}

	res, err := swapSessionsLua.Run(ctx, s.redis,
		[]string{s.key(accountID)},
		oldRaw, nextRaw, s.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

func (s *RedisStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// encodeList is canonical so the script can compare encodings byte-for-byte.
// The empty list encodes as "" and is stored as an absent key.
func encodeList(ids []string) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("corrupt session list: %w", err)
	}
	return ids, nil
}
