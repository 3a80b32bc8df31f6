package cache

import (
	"context"
	"fmt"
	"time"
)

// TokenBucketRateLimiter is a Redis-backed token bucket shared by every
// server process. Each key gets its own bucket.
type TokenBucketRateLimiter struct {
	client RedisClient
	prefix string
	rate   int
	burst  int
	now    func() time.Time
}

func NewTokenBucketRateLimiter(client RedisClient, prefix string, rate, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		client: client,
		prefix: fmt.Sprintf("rate_limit:%s", prefix),
		rate:   rate,
		burst:  burst,
		now:    time.Now,
	}
}

const tokenBucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl = math.max(2, math.ceil(burst / rate) * 2)

local tokens_key = key .. ":tokens"
local timestamp_key = key .. ":ts"

local tokens = tonumber(redis.call("get", tokens_key) or burst)
local last_update = tonumber(redis.call("get", timestamp_key) or now)

local elapsed = math.max(0, now - last_update)
local available = math.min(burst, tokens + elapsed * rate)

if available < 1 then
	return 0
end

redis.call("setex", tokens_key, ttl, available - 1)
redis.call("setex", timestamp_key, ttl, now)
return 1
`

// Allow takes one token from key's bucket.
func (l *TokenBucketRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return false, ErrRedisNotAvailable
	}
	res, err := l.client.Eval(ctx, tokenBucketScript,
		[]string{l.prefix + ":" + key},
		l.now().Unix(), l.rate, l.burst,
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
