package redis

// Package redis provides the Redis-backed adapters of the session and
// admission core: the session store, the auth rate limiter, and the
// per-session connection counter.

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ipWindowScript atomically increments a fixed-window counter, arming the
// window TTL on the first hit, and reports whether the post-increment count
// exceeds the cap. Check and increment must be one server-side step: a
// client-side GET+INCR+EXPIRE sequence races against concurrent requests
// from the same attacker.
//
// KEYS[1] counter key
// ARGV[1] cap, ARGV[2] window in milliseconds
// Returns {blocked(0|1), retry_after_ms}.
const ipWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if count > tonumber(ARGV[1]) then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    ttl = tonumber(ARGV[2])
  end
  return {1, ttl}
end
return {0, 0}
`

var ipWindowLua = redis.NewScript(ipWindowScript)

// ipWindow is the fixed 60-second window applied to all per-IP counters.
const ipWindow = time.Minute

// checkAndIncrementWindow runs the fixed-window script for key with the given
// cap. It returns blocked and the remaining window time when blocked.
func checkAndIncrementWindow(
	ctx context.Context,
	client redis.UniversalClient,
	key string,
	cap int,
) (bool, time.Duration, error) {
	result, err := ipWindowLua.Run(ctx, client, []string{key}, cap, ipWindow.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate window script: %w", err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return false, 0, fmt.Errorf("rate window script: unexpected response %v", result)
	}
	blocked, ok := parts[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("rate window script: unexpected status %v", parts[0])
	}
	if blocked == 0 {
		return false, 0, nil
	}
	retryMs, _ := parts[1].(int64)
	return true, time.Duration(retryMs) * time.Millisecond, nil
}
