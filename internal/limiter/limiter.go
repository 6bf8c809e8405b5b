package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter rate-limits message sends per sender using a fixed window counter
// in Redis. The INCR and EXPIRE run in one Lua script so the window is set
// atomically with the first hit.
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// New builds a limiter. A nil client or non-positive limit disables it.
func New(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

const fixedWindowScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local current = redis.call("INCR", key)
if current == 1 then
    redis.call("EXPIRE", key, window)
end

if current > limit then
    return 0
end
return 1
`

// Allow reports whether the key may proceed within the current window.
// Redis failures fail open: rate limiting protects the store, it must not
// take chat down with it.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.rdb == nil || l.limit <= 0 {
		return true, nil
	}
	result, err := l.rdb.Eval(ctx, fixedWindowScript,
		[]string{"chat:ratelimit:" + key},
		l.limit, int(l.window.Seconds()),
	).Int()
	if err != nil {
		return true, err
	}
	return result == 1, nil
}
