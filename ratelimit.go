package occasync

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter throttles operations per client. Allow returns nil when the
// call is within the limit and ErrRateLimited when it is not.
type Limiter interface {
	Allow(ctx context.Context, client, op string, limit int, window time.Duration) error
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window in-process limiter. Each (client, op)
// pair owns a bucket that counts calls until its window expires; expired
// buckets are swept periodically so one-off clients do not accumulate
// forever.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*rateBucket
	metrics   Metrics
	now       func() time.Time
	lastSweep time.Time
}

// NewRateLimiter creates an in-process rate limiter
func NewRateLimiter(metrics Metrics) *RateLimiter {
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &RateLimiter{
		buckets:   make(map[string]*rateBucket),
		metrics:   metrics,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

// Allow counts one call against the client's bucket for op
func (l *RateLimiter) Allow(ctx context.Context, client, op string, limit int, window time.Duration) error {
	key := client + ":" + op
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= RateSweepInterval {
		l.sweep(now)
		l.lastSweep = now
	}

	bucket, ok := l.buckets[key]
	if !ok || now.After(bucket.resetAt) {
		l.buckets[key] = &rateBucket{count: 1, resetAt: now.Add(window)}
		l.metrics.Increment(MetricRateAllowed, "operation", op)
		return nil
	}

	bucket.count++
	if bucket.count > limit {
		l.metrics.Increment(MetricRateRejected, "operation", op)
		return WithContext(ErrRateLimited, map[string]interface{}{
			"operation": op,
			"limit":     limit,
			"retryAt":   bucket.resetAt,
		})
	}

	l.metrics.Increment(MetricRateAllowed, "operation", op)
	return nil
}

// sweep drops expired buckets. Caller holds the mutex.
func (l *RateLimiter) sweep(now time.Time) {
	for key, bucket := range l.buckets {
		if now.After(bucket.resetAt) {
			delete(l.buckets, key)
		}
	}
	l.metrics.Gauge(MetricRateBucketCount, float64(len(l.buckets)))
}

// ClientKey derives the throttling identity of a request: the first
// address in X-Forwarded-For, or "unknown" when the header is absent
func ClientKey(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return UnknownClientKey
	}
	if i := strings.Index(forwarded, ","); i >= 0 {
		forwarded = forwarded[:i]
	}
	return strings.TrimSpace(forwarded)
}
