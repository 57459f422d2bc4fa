package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow prunes, counts and conditionally inserts in one step so that
// concurrent callers on the same key cannot both see room under the limit.
// Returns {allowed, count, retryAfterMs}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count >= max then
	local retry = window
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	return {0, count, retry}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

// RedisBackend is a sliding-window log per key kept in a Redis sorted set.
type RedisBackend struct {
	client    redis.Scripter
	keyPrefix string
	now       func() time.Time
}

// NewRedisBackend wraps client. Keys are stored under "ratelimit:".
func NewRedisBackend(client redis.Scripter) *RedisBackend {
	return &RedisBackend{
		client:    client,
		keyPrefix: "ratelimit:",
		now:       time.Now,
	}
}

func (b *RedisBackend) Name() string {
	return BackendRedis
}

func (b *RedisBackend) CheckAndConsume(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	nowMs := b.now().UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := slidingWindow.Run(ctx, b.client,
		[]string{b.keyPrefix + key},
		nowMs, window.Milliseconds(), limit, member,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to run sliding window script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("unexpected sliding window reply: %v", res)
	}

	count := int(res[1])
	d := Decision{
		Allowed:   res[0] == 1,
		Count:     count,
		Remaining: remaining(limit, count),
		Backend:   BackendRedis,
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return d, nil
}
