package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is the same fixed-window policy with the counter kept in
// Redis, for deployments running more than one bot replica against the
// same token. INCR creates the key at 1; the first request in a window
// also sets the expiry, which is what anchors the window at that request.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	key := "rate:" + identity

	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate incr: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate expire: %w", err)
		}
	}
	return n <= int64(l.limit), nil
}
