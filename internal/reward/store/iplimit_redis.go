package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"arcana/internal/policy"
)

// RedisIPLimiter counts ad watches per client IP and UTC day in Redis. The
// counter key expires shortly after the next midnight UTC so stale days clean
// themselves up.
type RedisIPLimiter struct {
	rdb redis.Cmdable
}

// NewRedisIPLimiter constructs an IP limiter over the given Redis client.
func NewRedisIPLimiter(rdb redis.Cmdable) *RedisIPLimiter {
	return &RedisIPLimiter{rdb: rdb}
}

func (l *RedisIPLimiter) Incr(ctx context.Context, ip string, now time.Time) (int, error) {
	day := now.UTC().Format("2006-01-02")
	key := fmt.Sprintf("adwatch:ip:%s:%s", ip, day)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, policy.StartOfDayUTC(now).Add(25*time.Hour))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment ip counter: %w", err)
	}
	return int(incr.Val()), nil
}
