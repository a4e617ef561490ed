package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

// slidingWindowScript prunes, counts and conditionally records in one atomic
// step, so concurrent admits across processes never observe a stale count.
//
// KEYS[1] = window key (sorted set, score = unix millis)
// ARGV[1] = now in millis
// ARGV[2] = window length in millis
// ARGV[3] = limit
// ARGV[4] = member to add on admit
//
// Returns {admitted, count after decision, retry after millis}.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)

if count >= limit then
    local retry = 0
    local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
    if oldest[2] then
        retry = tonumber(oldest[2]) + window - now
    end
    return {0, count, retry}
end

redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return {1, count + 1, 0}
`)

const (
	defaultPrefix  = "limiter:"
	defaultTimeout = 500 * time.Millisecond
)

// Option configures a RedisLimiter.
type Option func(*RedisLimiter)

// WithPrefix sets the key prefix (default "limiter:").
func WithPrefix(prefix string) Option {
	return func(r *RedisLimiter) { r.prefix = prefix }
}

// WithTimeout bounds each Redis round trip (default 500ms).
func WithTimeout(d time.Duration) Option {
	return func(r *RedisLimiter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// RedisLimiter is a sliding-window log shared by every process using the same
// Redis. Each (routing key, caller) pair is a sorted set of admit timestamps.
type RedisLimiter struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedisLimiter pings Redis and loads the script. It fails rather than
// returning a limiter that cannot reach its backend.
func NewRedisLimiter(client redis.UniversalClient, opts ...Option) (*RedisLimiter, error) {
	r := &RedisLimiter{client: client, prefix: defaultPrefix, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrLimiterUnavailable, err)
	}
	if err := slidingWindowScript.Load(ctx, client).Err(); err != nil {
		return nil, fmt.Errorf("%w: load script: %v", domain.ErrLimiterUnavailable, err)
	}
	return r, nil
}

// Admit runs the sliding window script for the pair.
func (r *RedisLimiter) Admit(ctx context.Context, routingKey, caller string, limit domain.RateLimit, now time.Time) (domain.Admission, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	values, err := slidingWindowScript.Run(ctx, r.client, []string{r.Key(routingKey, caller)},
		nowMs,
		limit.WindowMillis(),
		limit.Count,
		member,
	).Int64Slice()
	if err != nil {
		return domain.Admission{}, fmt.Errorf("%w: admit %s: %w", domain.ErrLimiterUnavailable, routingKey, err)
	}
	if len(values) != 3 {
		return domain.Admission{}, fmt.Errorf("%w: unexpected script reply %v", domain.ErrLimiterUnavailable, values)
	}

	if values[0] == 1 {
		return domain.Admission{Admitted: true, Remaining: limit.Count - values[1]}, nil
	}
	return domain.Admission{
		Admitted:   false,
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}

// Shared is true: all processes see the same windows.
func (r *RedisLimiter) Shared() bool { return true }

// Key returns the Redis key holding the window for the pair.
func (r *RedisLimiter) Key(routingKey, caller string) string {
	return r.prefix + "rate:" + routingKey + ":" + caller
}

// Close closes the underlying client.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

var _ ports.RateLimiter = (*RedisLimiter)(nil)
