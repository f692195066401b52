package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript charges one unit unless the cap is reached and pins the
// key's expiry to the next local midnight.
var incrementScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if current >= limit then
  return {current, 0}
end
current = redis.call("INCR", KEYS[1])
redis.call("PEXPIREAT", KEYS[1], ARGV[2])
return {current, 1}
`)

// grantScript stores a prepaid allowance that expires with the day.
var grantScript = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1])
redis.call("PEXPIREAT", KEYS[1], ARGV[2])
return 1
`)

// redeemScript takes one prepaid use if any is left.
var redeemScript = redis.NewScript(`
local left = tonumber(redis.call("GET", KEYS[1]) or "0")
if left <= 0 then
  return 0
end
redis.call("DECR", KEYS[1])
return 1
`)

// RedisStore shares counters across replicas.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "posemind:usage"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(session, day string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, day, session)
}

func (s *RedisStore) grantKey(session, day, item string) string {
	return fmt.Sprintf("%s:grant:%s:%s:%s", s.prefix, day, session, item)
}

func (s *RedisStore) Increment(ctx context.Context, session, day string, limit int, expireAt time.Time) (int, bool, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.key(session, day)}, limit, expireAt.UnixMilli()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis usage script: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis usage script: unexpected reply %v", res)
	}
	return int(res[0]), res[1] == 1, nil
}

func (s *RedisStore) Count(ctx context.Context, session, day string) (int, error) {
	n, err := s.client.Get(ctx, s.key(session, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis usage get: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Grant(ctx context.Context, session, day, item string, n int, expireAt time.Time) error {
	if err := grantScript.Run(ctx, s.client, []string{s.grantKey(session, day, item)}, n, expireAt.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("redis usage grant: %w", err)
	}
	return nil
}

func (s *RedisStore) Redeem(ctx context.Context, session, day, item string) (bool, error) {
	n, err := redeemScript.Run(ctx, s.client, []string{s.grantKey(session, day, item)}).Int()
	if err != nil {
		return false, fmt.Errorf("redis usage redeem: %w", err)
	}
	return n == 1, nil
}
