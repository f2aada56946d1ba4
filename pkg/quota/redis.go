package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisBackend implements Backend on a Redis-compatible store. Every
// mutation runs as a Lua script so concurrent turns from the same caller
// cannot lose updates, and the settlement decrement floors at zero inside
// the script instead of clamping with a read-after-write.
type RedisBackend struct {
	client goredis.Cmdable
}

// Open connects a client from a redis:// or rediss:// URL.
func Open(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("quota: parse redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

func NewRedisBackend(client goredis.Cmdable) *RedisBackend {
	return &RedisBackend{client: client}
}

var _ Backend = (*RedisBackend)(nil)

// Sliding-window counter: the previous window's count is weighted by how
// much of it still overlaps the sliding window.
// KEYS[1] = window key prefix
// ARGV[1] = limit, ARGV[2] = window_ms, ARGV[3] = now_ms
// Returns {allowed, remaining, reset_at_ms}.
var rateScript = goredis.NewScript(`
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])

local current_start = now_ms - (now_ms % window_ms)
local prev_start = current_start - window_ms
local current_key = KEYS[1] .. ":" .. current_start
local prev_key = KEYS[1] .. ":" .. prev_start

local current = tonumber(redis.call("GET", current_key) or "0")
local prev = tonumber(redis.call("GET", prev_key) or "0")

local elapsed = now_ms - current_start
local weight = (window_ms - elapsed) / window_ms
local computed = prev * weight + current

local allowed = 0
if computed + 1 <= limit then
	allowed = 1
	redis.call("INCRBY", current_key, 1)
	redis.call("PEXPIRE", current_key, window_ms * 2)
	computed = computed + 1
end

local remaining = math.floor(limit - computed)
if remaining < 0 then remaining = 0 end
return {allowed, remaining, current_start + window_ms}
`)

// KEYS[1] = committed, KEYS[2] = reserved
// ARGV[1] = amount, ARGV[2] = limit, ARGV[3] = ttl_seconds
// Returns 1 when the hold was placed, 0 when the budget is insufficient.
var reserveScript = goredis.NewScript(`
local committed = tonumber(redis.call("GET", KEYS[1]) or "0")
local reserved = tonumber(redis.call("GET", KEYS[2]) or "0")
if committed < 0 then committed = 0 end
if reserved < 0 then reserved = 0 end

local amount = tonumber(ARGV[1])
if committed + reserved + amount > tonumber(ARGV[2]) then
	return 0
end
redis.call("INCRBY", KEYS[2], amount)
redis.call("EXPIRE", KEYS[2], ARGV[3])
return 1
`)

// KEYS[1] = committed, KEYS[2] = reserved
// ARGV[1] = reserved_amount, ARGV[2] = actual_used, ARGV[3] = ttl_seconds
var settleScript = goredis.NewScript(`
local reserved_amount = tonumber(ARGV[1])
if reserved_amount > 0 then
	local after = redis.call("DECRBY", KEYS[2], reserved_amount)
	if after < 0 then
		redis.call("SET", KEYS[2], 0)
	end
	redis.call("EXPIRE", KEYS[2], ARGV[3])
end
local actual = tonumber(ARGV[2])
if actual > 0 then
	redis.call("INCRBY", KEYS[1], actual)
	redis.call("EXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

func (b *RedisBackend) ConsumeRate(ctx context.Context, key string, limit int64, window time.Duration) (RateResult, error) {
	vals, err := rateScript.Run(ctx, b.client, []string{key}, limit, window.Milliseconds(), time.Now().UnixMilli()).Int64Slice()
	if err != nil {
		return RateResult{}, fmt.Errorf("quota: rate limit: %w", err)
	}
	if len(vals) != 3 {
		return RateResult{}, fmt.Errorf("quota: rate limit: unexpected reply %v", vals)
	}
	return RateResult{
		Allowed:   vals[0] == 1,
		Limit:     limit,
		Remaining: vals[1],
		ResetAt:   time.UnixMilli(vals[2]),
	}, nil
}

func (b *RedisBackend) ReadCounters(ctx context.Context, committedKey, reservedKey string) (int64, int64, error) {
	vals, err := b.client.MGet(ctx, committedKey, reservedKey).Result()
	if err != nil {
		return 0, 0, err
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected mget reply length %d", len(vals))
	}
	return parseCounter(vals[0]), parseCounter(vals[1]), nil
}

func (b *RedisBackend) Reserve(ctx context.Context, committedKey, reservedKey string, amount, limit int64, ttl time.Duration) (bool, error) {
	n, err := reserveScript.Run(ctx, b.client, []string{committedKey, reservedKey}, amount, limit, int64(ttl.Seconds())).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (b *RedisBackend) Settle(ctx context.Context, committedKey, reservedKey string, reservedAmount, actualUsed int64, ttl time.Duration) error {
	return settleScript.Run(ctx, b.client, []string{committedKey, reservedKey}, reservedAmount, actualUsed, int64(ttl.Seconds())).Err()
}

// parseCounter tolerates missing keys and junk values, treating both as 0.
func parseCounter(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case int64:
		return x
	default:
		return 0
	}
}
