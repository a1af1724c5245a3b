package middleware

import (
	"context"
	"math"
	"time"

	"github.com/zfogg/sparkfeed/internal/cache"
)

// RedisLimiter is a fixed-window counter shared by every server instance
type RedisLimiter struct {
	rc     *cache.RedisClient
	config RateLimitConfig
	name   string
}

// NewRedisLimiter creates a distributed limiter. name separates the
// counters of different route groups.
func NewRedisLimiter(rc *cache.RedisClient, name string, config RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{rc: rc, config: config, name: name}
}

// Allow increments key's counter for the current window
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	redisKey := rl.rc.Key("rate_limit:" + rl.name + ":" + key)
	client := rl.rc.Client()

	count, err := client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, err
	}
	// Set expiration on first request in this window
	if count == 1 {
		if err := client.Expire(ctx, redisKey, rl.config.Window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(rl.config.Limit) {
		return true, 0, nil
	}

	ttl, err := client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = rl.config.Window
	}
	return false, int(math.Ceil(ttl.Seconds())), nil
}
