package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CountInWindow adds one hit to key and returns the hits seen in the current
// fixed window. A key found without a TTL gets window set again, so a
// failed EXPIRE never leaves a counter that lives forever.
func CountInWindow(ctx context.Context, rdb *redis.Client, key string, window time.Duration) (int64, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis: count %s: %w", key, err)
	}

	if ttl.Val() < 0 {
		if err := rdb.PExpire(ctx, key, window).Err(); err != nil {
			return incr.Val(), fmt.Errorf("redis: expire %s: %w", key, err)
		}
	}
	return incr.Val(), nil
}
