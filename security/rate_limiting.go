package security

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// ScanRateLimiter throttles gate scan requests per client address with
// a Redis fixed window, so a misbehaving device cannot flood the
// ledger.
type ScanRateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewScanRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *ScanRateLimiter {
	return &ScanRateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
	}
}

// Allow counts one request for key and reports whether it is still
// inside the window budget. A Redis failure fails open.
func (r *ScanRateLimiter) Allow(ctx context.Context, key string) bool {
	countKey := fmt.Sprintf("ratelimit:scan:%s", key)

	count, err := r.redis.Incr(ctx, countKey).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, countKey, r.window)
	}

	return count <= int64(r.limit)
}

// Middleware applies the limiter to a route, keyed by client IP.
func (r *ScanRateLimiter) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if !r.Allow(e.Request.Context(), e.RealIP()) {
			return e.JSON(429, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}
		return e.Next()
	}
}
