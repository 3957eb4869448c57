package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed windows across processes with INCR + PEXPIRE.
type RedisLimiter struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(rdb redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, prefix: "vidblog:ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.prefix + key
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit incr: %w", err)
	}
	if n == 1 {
		if err := l.rdb.PExpire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit expire: %w", err)
		}
	}
	if n <= int64(l.limit) {
		return Decision{Allowed: true, Remaining: l.limit - int(n)}, nil
	}

	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit ttl: %w", err)
	}
	if ttl < 0 {
		// key lost its expiry; start a new window
		_ = l.rdb.PExpire(ctx, k, l.window).Err()
		ttl = l.window
	}
	return Decision{RetryAfter: ttl}, nil
}
