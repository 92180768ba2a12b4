package geocode

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCache keeps geocode responses in Redis. Address text rarely changes
// meaning, so entries live for a long TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: 30 * 24 * time.Hour}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool) {
	data, err := c.rdb.Get(ctx, "geocode:"+key).Bytes()
	if err != nil {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, false
	}
	return res, true
}

func (c *RedisCache) Put(ctx context.Context, key string, res Result) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, "geocode:"+key, data, c.ttl).Err()
}
