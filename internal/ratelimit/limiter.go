// Package ratelimit bounds failed login attempts per account.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter tracks login failures for a key (the login email) inside a
// rolling window.
type Limiter interface {
	// Allow reports whether a login attempt may proceed and, when blocked,
	// how long until the window resets.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	// Failure records a failed attempt.
	Failure(ctx context.Context, key string) error
	// Success clears the failure counter after a successful login.
	Success(ctx context.Context, key string) error
}

// RedisLimiter counts failures in Redis with an expiring key. Redis
// outages fail open: login availability wins over lockout precision.
type RedisLimiter struct {
	client      *redis.Client
	logger      *zap.Logger
	maxFailures int
	window      time.Duration
}

// NewRedisLimiter builds a limiter over the shared Redis client.
func NewRedisLimiter(client *redis.Client, logger *zap.Logger, maxFailures int, window time.Duration) *RedisLimiter {
	if maxFailures <= 0 {
		maxFailures = 10
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisLimiter{client: client, logger: logger, maxFailures: maxFailures, window: window}
}

func (l *RedisLimiter) key(key string) string {
	return "login_failures:" + key
}

// Allow checks the current failure count for the key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	count, err := l.client.Get(ctx, l.key(key)).Int()
	if err == redis.Nil {
		return true, 0, nil
	}
	if err != nil {
		l.logger.Warn("rate limiter unavailable; allowing login", zap.Error(err))
		return true, 0, nil
	}
	if count < l.maxFailures {
		return true, 0, nil
	}
	ttl, err := l.client.TTL(ctx, l.key(key)).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// Failure increments the counter and refreshes the window.
func (l *RedisLimiter) Failure(ctx context.Context, key string) error {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, l.key(key))
	pipe.Expire(ctx, l.key(key), l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter failure not recorded", zap.Error(err))
		return nil
	}
	_ = incr
	return nil
}

// Success resets the counter.
func (l *RedisLimiter) Success(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		l.logger.Warn("rate limiter counter not cleared", zap.Error(err))
	}
	return nil
}
