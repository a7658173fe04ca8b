package occasync

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter shared across processes.
// Each (client, op) pair maps to a Redis counter that expires with the
// window. Redis failures fail open: losing the limiter must not take
// the API down with it.
type RedisRateLimiter struct {
	client  *redis.Client
	logger  Logger
	metrics Metrics
}

// NewRedisRateLimiter creates a Redis-backed rate limiter
func NewRedisRateLimiter(client *redis.Client, logger Logger, metrics Metrics) *RedisRateLimiter {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &RedisRateLimiter{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}
}

// Allow counts one call against the shared counter for (client, op)
func (l *RedisRateLimiter) Allow(ctx context.Context, client, op string, limit int, window time.Duration) error {
	key := RateKeyPrefix + client + ":" + op

	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", "error", err)
		return nil
	}

	if n == 1 {
		if err := l.client.PExpire(ctx, key, window).Err(); err != nil {
			l.logger.Warn("rate limiter expire failed", "key", key, "error", err)
		}
	}

	if n > int64(limit) {
		l.metrics.Increment(MetricRateRejected, "operation", op)
		return WithContext(ErrRateLimited, map[string]interface{}{
			"operation": op,
			"limit":     limit,
		})
	}

	l.metrics.Increment(MetricRateAllowed, "operation", op)
	return nil
}
