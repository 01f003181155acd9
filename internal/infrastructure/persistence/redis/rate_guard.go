package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ndmx/upscale/internal/domain/security"
)

// slidingWindowScript trims the origin's sorted set to the window, admits the
// request if fewer than limit entries remain, and returns
// {allowed, count, oldest score}. Rejected requests are not recorded.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, count, tonumber(oldest[2])}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

// RateGuard is a sliding-window security.RateGuard shared by all instances.
type RateGuard struct {
	client redis.Scripter
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ security.RateGuard = (*RateGuard)(nil)

// NewRateGuard creates a guard admitting limit requests per origin per window.
func NewRateGuard(cache *Cache, limit int, window time.Duration, now func() time.Time) *RateGuard {
	if now == nil {
		now = time.Now
	}
	return &RateGuard{client: cache.Client(), limit: limit, window: window, now: now}
}

// Allow implements security.RateGuard.
func (g *RateGuard) Allow(ctx context.Context, origin string) (security.Decision, error) {
	now := g.now()
	res, err := slidingWindowScript.Run(ctx, g.client,
		[]string{RateLimitKey(origin)},
		now.UnixMilli(),
		g.window.Milliseconds(),
		g.limit,
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString()[:8],
	).Int64Slice()
	if err != nil {
		return security.Decision{}, fmt.Errorf("redis rate guard: %w", err)
	}

	allowed, count, oldest := res[0] == 1, int(res[1]), res[2]
	if allowed {
		return security.Decision{Allowed: true, Limit: g.limit, Remaining: g.limit - count}, nil
	}

	retryAfter := time.UnixMilli(oldest).Add(g.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return security.Decision{Limit: g.limit, RetryAfter: retryAfter}, nil
}
