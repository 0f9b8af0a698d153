package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/target/console-gate/internal/errors"
	"github.com/target/console-gate/internal/ports"
)

// connAcquireScript increments a per-session connection counter, rolling
// back when the increment would exceed the cap. The TTL bounds counter drift
// from crashed processes that never released.
//
// KEYS[1] counter key
// ARGV[1] per-session cap, ARGV[2] counter TTL in milliseconds
// Returns {1, count} when admitted, {0, count} when at capacity.
const connAcquireScript = `
local count = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
if count > tonumber(ARGV[1]) then
  redis.call("DECR", KEYS[1])
  return {0, count - 1}
end
return {1, count}
`

// connReleaseScript decrements the counter and deletes it at zero, so idle
// sessions leave no key behind. Clamped at zero: a double release (or a
// release after TTL expiry) must not drive the counter negative.
//
// KEYS[1] counter key
// Returns the remaining count.
const connReleaseScript = `
local count = redis.call("DECR", KEYS[1])
if count <= 0 then
  redis.call("DEL", KEYS[1])
  return 0
end
return count
`

var (
	connAcquireLua = redis.NewScript(connAcquireScript)
	connReleaseLua = redis.NewScript(connReleaseScript)
)

// ConnCounterConfig tunes the per-session connection counter.
type ConnCounterConfig struct {
	// PerSessionMax caps concurrent connections for a single session.
	PerSessionMax int

	// CounterTTL bounds how long a leaked counter can overstate usage
	// after a process crash.
	CounterTTL time.Duration
}

// ConnCounter tracks concurrent connection counts per session in Redis, so
// the cap holds across every instance sharing the cache.
type ConnCounter struct {
	client redis.UniversalClient
	cfg    ConnCounterConfig
}

var _ ports.ConnCounter = (*ConnCounter)(nil)

// NewConnCounter constructs a connection counter.
func NewConnCounter(client redis.UniversalClient, cfg ConnCounterConfig) *ConnCounter {
	return &ConnCounter{client: client, cfg: cfg}
}

func connKey(sessionID string) string { return "conn:sess:" + sessionID }

// Acquire reserves a connection slot for the session. Returns whether the
// slot was granted and the session's resulting connection count.
func (c *ConnCounter) Acquire(ctx context.Context, sessionID string) (bool, int, error) {
	res, err := connAcquireLua.Run(
		ctx, c.client,
		[]string{connKey(sessionID)},
		c.cfg.PerSessionMax, c.cfg.CounterTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "connection accounting failed")
	}
	if len(res) != 2 {
		return false, 0, apperrors.Internalf("connection acquire script returned %d values", len(res))
	}
	return res[0] == 1, int(res[1]), nil
}

// Release returns a previously acquired slot. Safe to call more than once
// for the same slot; the counter never goes negative.
func (c *ConnCounter) Release(ctx context.Context, sessionID string) (int, error) {
	count, err := connReleaseLua.Run(ctx, c.client, []string{connKey(sessionID)}).Int64()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "connection accounting failed")
	}
	return int(count), nil
}

// Count reports the session's current connection count without mutating it.
func (c *ConnCounter) Count(ctx context.Context, sessionID string) (int, error) {
	count, err := c.client.Get(ctx, connKey(sessionID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "connection accounting failed")
	}
	return int(count), nil
}
