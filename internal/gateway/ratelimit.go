package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter decides whether a request from key may proceed. Grounded
// on ui/security's dual-backend shape (Redis when available, in-memory
// fallback otherwise), adapted from per-transport rate limiting to
// per-user API Gateway throttling (spec §4.15).
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfterSeconds int)
}

// RedisRateLimiter implements a fixed one-minute window using Redis
// INCRBY/EXPIRE: the first request in a window creates the counter with
// a 60s TTL, subsequent requests just increment it.
type RedisRateLimiter struct {
	client            *redis.Client
	requestsPerMinute int
}

// NewRedisRateLimiter connects to addr (a redis:// URL) and returns a
// RateLimiter backed by it. Wired in when GatewayConfig.RedisURL is set
// (cmd/codecoder/gateway.go); NewInMemoryRateLimiter is used otherwise.
func NewRedisRateLimiter(addr string, requestsPerMinute int) (*RedisRateLimiter, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisRateLimiter{client: redis.NewClient(opts), requestsPerMinute: requestsPerMinute}, nil
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int) {
	windowKey := fmt.Sprintf("%s:%s", key, time.Now().UTC().Format("2006-01-02T15:04"))

	count, err := l.client.IncrBy(ctx, windowKey, 1).Result()
	if err != nil {
		// Fail open: an unreachable Redis must not take the gateway down.
		return true, 0
	}
	if count == 1 {
		l.client.Expire(ctx, windowKey, time.Minute)
	}

	if count > int64(l.requestsPerMinute) {
		return false, 60
	}
	return true, 0
}

// InMemoryRateLimiter is the fallback used when no Redis client is
// configured: a fixed one-minute window per key, held in a sync.Map.
type InMemoryRateLimiter struct {
	requestsPerMinute int
	buckets           sync.Map
}

type rateBucket struct {
	mu        sync.Mutex
	count     int
	resetTime time.Time
}

func NewInMemoryRateLimiter(requestsPerMinute int) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{requestsPerMinute: requestsPerMinute}
}

func (l *InMemoryRateLimiter) Allow(ctx context.Context, key string) (bool, int) {
	now := time.Now()
	bucketIface, _ := l.buckets.LoadOrStore(key, &rateBucket{resetTime: now.Add(time.Minute)})
	bucket := bucketIface.(*rateBucket)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	if now.After(bucket.resetTime) {
		bucket.count = 0
		bucket.resetTime = now.Add(time.Minute)
	}

	if bucket.count >= l.requestsPerMinute {
		return false, int(bucket.resetTime.Sub(now).Seconds())
	}
	bucket.count++
	return true, 0
}
