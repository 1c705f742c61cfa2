package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TransferRateLimiter throttles transfer submission per sender. Allow reports
// whether the request may proceed and, when it may not, how long to wait.
type TransferRateLimiter interface {
	Allow(ctx context.Context, subject string) (allowed bool, retryAfter time.Duration, err error)
}

var transferRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisTransferRateLimiter implements distributed fixed-window rate limiting
// using Redis, so the limit holds across service replicas.
type RedisTransferRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisTransferRateLimiter(client redis.UniversalClient, prefix string, limitPerMinute int) *RedisTransferRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "titan:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	return &RedisTransferRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		limit:  limitPerMinute,
		window: time.Minute,
	}
}

func (r *RedisTransferRateLimiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	if r == nil || r.client == nil || r.limit <= 0 {
		return true, 0, nil
	}

	normalizedSubject := strings.TrimSpace(subject)
	if normalizedSubject == "" {
		return true, 0, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s", r.prefix, normalizedSubject)
	rawResult, err := transferRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return true, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return true, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}

	currentCount, ok := values[0].(int64)
	if !ok {
		return true, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}

	ttlMs, ok := values[1].(int64)
	if !ok {
		return true, 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	if currentCount <= int64(r.limit) {
		return true, 0, nil
	}

	retryAfterSeconds := math.Ceil(float64(ttlMs) / 1000.0)
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	return false, time.Duration(retryAfterSeconds) * time.Second, nil
}
