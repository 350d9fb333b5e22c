package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter, sets the expiry on the first hit and returns count and ttl.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter is a fixed window limiter shared by every instance using the same Redis.
type RedisLimiter struct {
	client redis.Scripter
	window time.Duration
	limit  int
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a shared limiter. Non-positive arguments fall back to the defaults.
func NewRedisLimiter(client redis.Scripter, window time.Duration, limit int) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &RedisLimiter{
		client: client,
		window: window,
		limit:  limit,
		prefix: "formbase:ratelimit:",
		now:    time.Now,
	}
}

// NewRedisClient parses a redis:// URL and returns a client.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, errParse := redis.ParseURL(strings.TrimSpace(rawURL))
	if errParse != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", errParse)
	}
	return redis.NewClient(opts), nil
}

// Check counts a request for key in Redis.
func (l *RedisLimiter) Check(ctx context.Context, key string) (Result, error) {
	now := l.now()
	raw, errRun := fixedWindowScript.Run(ctx, l.client, []string{l.redisKey(key)}, l.window.Milliseconds()).Int64Slice()
	if errRun != nil {
		return Result{}, fmt.Errorf("ratelimit: redis check: %w", errRun)
	}
	if len(raw) != 2 {
		return Result{}, fmt.Errorf("ratelimit: unexpected redis reply %v", raw)
	}
	count, ttl := int(raw[0]), time.Duration(raw[1])*time.Millisecond

	resetAt := now.Add(ttl)
	result := Result{
		Allowed: count <= l.limit,
		Limit:   l.limit,
		ResetAt: resetAt,
	}
	if result.Allowed {
		result.Remaining = l.limit - count
	} else {
		result.RetryAfterSeconds = retryAfter(now, resetAt)
	}
	return result, nil
}

func (l *RedisLimiter) redisKey(key string) string {
	return l.prefix + key
}
