package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// StatsCache 以 JSON 缓存报表结果，过期即失效，不做主动刷新。
type StatsCache struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewStatsCache(rdb *rd.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl}
}

// Get 命中时把值解到 dst。found=false 表示 key 不存在。
func (c *StatsCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, rd.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set 写入并刷新 TTL。
func (c *StatsCache) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
