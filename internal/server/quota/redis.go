package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/imgdrop/internal/common"
)

const keyPrefix = "imgdrop:quota:"

// reserveScript returns -1 when the reservation does not fit.
var reserveScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if limit > 0 and used + n > limit then
	return -1
end
return redis.call('INCRBY', KEYS[1], n)
`)

var releaseScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0') - tonumber(ARGV[1])
if used < 0 then used = 0 end
redis.call('SET', KEYS[1], used)
return used
`)

// RedisStore keeps usage counters in Redis so several server instances share
// one view of each owner's quota.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to the Redis server at url (redis://...) and checks
// the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) key(owner string) string {
	return keyPrefix + owner
}

func (s *RedisStore) Reserve(ctx context.Context, owner string, n, limit int64) error {
	res, err := reserveScript.Run(ctx, s.rdb, []string{s.key(owner)}, n, limit).Int64()
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}
	if res < 0 {
		return common.ErrorQuotaExceeded
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, owner string, n int64) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{s.key(owner)}, n).Err(); err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return nil
}

func (s *RedisStore) Usage(ctx context.Context, owner string) (int64, error) {
	used, err := s.rdb.Get(ctx, s.key(owner)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota: %w", err)
	}
	return used, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
