package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/npc-swipe/internal/config"
)

// CountTTL is how long an approval counter survives without being read.
const CountTTL = time.Hour

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForApprovalCount generates the Redis key holding how many approve/super
// decisions a profile received.
func (c *RedisCache) KeyForApprovalCount(profileID string) string {
	return fmt.Sprintf("approvals:count:%s", profileID)
}

// SetApprovalCount stores a freshly computed count. Always refreshes the TTL.
func (c *RedisCache) SetApprovalCount(ctx context.Context, profileID string, count int64) error {
	return c.Client.Set(ctx, c.KeyForApprovalCount(profileID), count, CountTTL).Err()
}

// GetApprovalCount returns the cached count. ok is false on a cache miss.
func (c *RedisCache) GetApprovalCount(ctx context.Context, profileID string) (n int64, ok bool, err error) {
	key := c.KeyForApprovalCount(profileID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	n, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		// garbage under our key; treat as a miss so the caller recomputes
		return 0, false, nil
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, key, CountTTL).Err()
	return n, true, nil
}

// IncrApprovalCount bumps a cached counter. A missing key is left missing:
// starting it at 1 would hide every approval made before it expired.
func (c *RedisCache) IncrApprovalCount(ctx context.Context, profileID string) error {
	key := c.KeyForApprovalCount(profileID)
	n, err := c.Client.Exists(ctx, key).Result()
	if err != nil || n == 0 {
		return err
	}
	pipe := c.Client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, CountTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateApprovalCounts drops the counters of the given profiles.
func (c *RedisCache) InvalidateApprovalCounts(ctx context.Context, profileIDs ...string) error {
	if len(profileIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(profileIDs))
	for _, id := range profileIDs {
		keys = append(keys, c.KeyForApprovalCount(id))
	}
	return c.Client.Del(ctx, keys...).Err()
}

// Publish sends payload on a pub/sub channel and returns the receiver count.
func (c *RedisCache) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	return c.Client.Publish(ctx, channel, payload).Result()
}
