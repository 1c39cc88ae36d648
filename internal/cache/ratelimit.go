// Package cache holds the Redis-backed fixed-window rate limiter used
// by the traffic middleware.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter implements a fixed-window counter per key. The window key
// carries the window start so expired windows roll over naturally.
type RateLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRateLimiter creates a limiter on the given Redis client.
func NewRateLimiter(client *redis.Client, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{client: client, logger: logger}
}

// Allow records a hit against the key's current window and reports
// whether it stays within limit. Redis failures allow the request; rate
// limiting is protective, not an entitlement, so it fails open.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	windowStart := time.Now().UTC().Truncate(window).Unix()
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, windowStart)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.WarnContext(ctx, "rate limiter unavailable, failing open",
			"key", key, "error", err)
		return true, err
	}

	return count.Val() <= int64(limit), nil
}

// Reset clears the key's current window. Used by tests and admin tooling.
func (l *RateLimiter) Reset(ctx context.Context, key string, window time.Duration) error {
	windowStart := time.Now().UTC().Truncate(window).Unix()
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, windowStart)
	return l.client.Del(ctx, bucket).Err()
}
