package service

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	infraRedis "github.com/sifan077/PowerStash/internal/infra/redis"
	"go.uber.org/zap"
)

const floodKeyPrefix = "flood"

// FloodGuard caps how many links one user may open per window. It counts in
// Redis and fails open when Redis is unavailable. A nil guard allows all.
type FloodGuard struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	logger *zap.Logger
}

func NewFloodGuard(rdb *redis.Client, limit int, window time.Duration, logger *zap.Logger) *FloodGuard {
	if rdb == nil || limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FloodGuard{rdb: rdb, limit: limit, window: window, logger: logger}
}

// Allow records one request for userID and reports whether it is within
// the limit.
func (g *FloodGuard) Allow(ctx context.Context, userID int64) bool {
	if g == nil {
		return true
	}
	key := floodKeyPrefix + ":" + strconv.FormatInt(userID, 10)

	count, err := infraRedis.CountInWindow(ctx, g.rdb, key, g.window)
	if err != nil {
		g.logger.Error("flood guard redis error", zap.Error(err))
		if count == 0 {
			return true
		}
	}
	return count <= int64(g.limit)
}
