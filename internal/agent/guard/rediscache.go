package guard

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	logx "github.com/studyloop-core/server/pkg/logger"
)

// RedisCache shares the response cache across instances. Redis failures are
// logged and degrade to a miss or dropped write; a broken cache must never
// fail a model call.
type RedisCache struct {
	rdb redis.Cmdable
}

func NewRedisCache(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Warn().Err(err).Str("key", key).Msg("response cache read failed, treating as miss")
		}
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("response cache write failed, dropping entry")
	}
}
