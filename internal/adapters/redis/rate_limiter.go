package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/console-gate/internal/audit"
	apperrors "github.com/target/console-gate/internal/errors"
	"github.com/target/console-gate/internal/ports"
)

// RateLimiterConfig tunes the limiter windows and thresholds.
type RateLimiterConfig struct {
	IPMaxPerMinute   int
	FailureWindow    time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
}

// RateLimiter enforces the two-phase authentication throttle protocol:
// check before attempting, record after a failure, clear after success.
// All mutating operations run as single server-side scripts.
//
// A lockout marker's mere presence denotes "locked"; its value carries no
// meaning beyond existing.
type RateLimiter struct {
	client redis.UniversalClient
	cfg    RateLimiterConfig
	audit  audit.Sink
	atomic bool
}

var _ ports.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter constructs the production limiter using atomic scripts.
func NewRateLimiter(client redis.UniversalClient, cfg RateLimiterConfig, sink audit.Sink) *RateLimiter {
	if sink == nil {
		sink = audit.NoopSink{}
	}
	return &RateLimiter{client: client, cfg: cfg, audit: sink, atomic: true}
}

// NewBestEffortRateLimiter constructs a limiter that replaces the scripts
// with plain INCR/EXPIRE sequences. The check-then-act windows this opens
// make it unsuitable for any real deployment; it exists only for test
// doubles of cache backends without scripting support.
func NewBestEffortRateLimiter(client redis.UniversalClient, cfg RateLimiterConfig, sink audit.Sink) *RateLimiter {
	rl := NewRateLimiter(client, cfg, sink)
	rl.atomic = false
	return rl
}

func ipKey(ip string) string        { return "rl:ip:" + ip }
func failKey(account string) string { return "rl:fail:" + account }
func lockKey(account string) string { return "rl:lock:" + account }

// checkOnlyScript inspects the IP window and lockout marker without mutating
// either. KEYS[1] ip counter, KEYS[2] lockout marker; ARGV[1] ip cap.
// Returns {status, retry_after_ms} with status 0=allowed, 1=ip, 2=locked.
const checkOnlyScript = `
local ip = tonumber(redis.call("GET", KEYS[1]) or "0")
if ip >= tonumber(ARGV[1]) then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then ttl = 0 end
  return {1, ttl}
end
local lock = redis.call("PTTL", KEYS[2])
if lock > 0 then
  return {2, lock}
end
return {0, 0}
`

// recordFailureScript increments the IP window and, only when the IP is
// under its cap, the account failure counter. Reaching the lockout threshold
// sets the lockout marker and deletes the failure counter in the same step,
// so a stale counter can never trigger an immediate re-lock after the
// lockout expires. When the IP cap is exceeded the account counter is left
// untouched: a distributed credential-stuffing run must not cheaply exhaust
// a victim account's attempt budget.
//
// KEYS[1] ip counter, KEYS[2] failure counter, KEYS[3] lockout marker
// ARGV[1] ip cap, ARGV[2] ip window ms, ARGV[3] failure window ms,
// ARGV[4] lockout threshold, ARGV[5] lockout ms
// Returns {status, retry_after_ms}: 0=failure_recorded, 1=ip, 2=locked_now.
const recordFailureScript = `
local ip = redis.call("INCR", KEYS[1])
if ip == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if ip > tonumber(ARGV[1]) then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then ttl = tonumber(ARGV[2]) end
  return {1, ttl}
end
local fails = redis.call("INCR", KEYS[2])
if fails == 1 then
  redis.call("PEXPIRE", KEYS[2], ARGV[3])
end
if fails >= tonumber(ARGV[4]) then
  redis.call("SET", KEYS[3], "1", "PX", ARGV[5])
  redis.call("DEL", KEYS[2])
  return {2, tonumber(ARGV[5])}
end
return {0, 0}
`

var (
	checkOnlyLua     = redis.NewScript(checkOnlyScript)
	recordFailureLua = redis.NewScript(recordFailureScript)
)

// CheckOnly reports whether the ip/account pair may attempt authentication.
// Read-only: safe to call unconditionally before credential verification.
func (l *RateLimiter) CheckOnly(ctx context.Context, ip, account string) (ports.Decision, error) {
	result, err := checkOnlyLua.Run(
		ctx, l.client,
		[]string{ipKey(ip), lockKey(account)},
		l.cfg.IPMaxPerMinute,
	).Result()
	if err != nil {
		return ports.Decision{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "rate limiter check failed")
	}
	return l.decode(result, map[int64]ports.Reason{
		0: ports.ReasonAllowed,
		1: ports.ReasonIPRateLimited,
		2: ports.ReasonAccountLocked,
	})
}

// RecordFailure records a failed authentication attempt for the ip/account
// pair and reports the resulting state.
func (l *RateLimiter) RecordFailure(ctx context.Context, ip, account string) (ports.Decision, error) {
	if !l.atomic {
		return l.recordFailureBestEffort(ctx, ip, account)
	}

	result, err := recordFailureLua.Run(
		ctx, l.client,
		[]string{ipKey(ip), failKey(account), lockKey(account)},
		l.cfg.IPMaxPerMinute,
		ipWindow.Milliseconds(),
		l.cfg.FailureWindow.Milliseconds(),
		l.cfg.LockoutThreshold,
		l.cfg.LockoutDuration.Milliseconds(),
	).Result()
	if err != nil {
		return ports.Decision{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "rate limiter record failed")
	}

	decision, err := l.decode(result, map[int64]ports.Reason{
		0: ports.ReasonFailureRecorded,
		1: ports.ReasonIPRateLimited,
		2: ports.ReasonAccountLockedNow,
	})
	if err != nil {
		return ports.Decision{}, err
	}
	if decision.Reason == ports.ReasonAccountLockedNow {
		l.audit.Emit(ctx, audit.Event{
			Type:    audit.TypeAccountLocked,
			Subject: account,
			IP:      ip,
			Reason:  string(ports.ReasonAccountLockedNow),
		})
	}
	return decision, nil
}

// ClearOnSuccess deletes the account's failure counter and lockout marker
// after a successful authentication.
func (l *RateLimiter) ClearOnSuccess(ctx context.Context, account string) error {
	if err := l.client.Del(ctx, failKey(account), lockKey(account)).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "rate limiter clear failed")
	}
	return nil
}

// CheckAndIncrementIP checks and increments the IP window in one atomic step
// for flows that have no account identifier yet at check time (e.g., a
// federated-login callback before the IdP has responded).
func (l *RateLimiter) CheckAndIncrementIP(ctx context.Context, ip string) (ports.Decision, error) {
	if !l.atomic {
		return l.checkAndIncrementIPBestEffort(ctx, ip)
	}

	blocked, retryAfter, err := checkAndIncrementWindow(ctx, l.client, ipKey(ip), l.cfg.IPMaxPerMinute)
	if err != nil {
		return ports.Decision{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "rate limiter check failed")
	}
	if blocked {
		return ports.Decision{Blocked: true, RetryAfter: retryAfter, Reason: ports.ReasonIPRateLimited}, nil
	}
	return ports.Decision{Reason: ports.ReasonAllowed}, nil
}

// Unlock clears an account's counters outside the normal flow. The acting
// administrator is recorded in the audit trail.
func (l *RateLimiter) Unlock(ctx context.Context, account, adminIdentity string) error {
	if err := l.client.Del(ctx, failKey(account), lockKey(account)).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "rate limiter unlock failed")
	}
	l.audit.Emit(ctx, audit.Event{
		Type:     audit.TypeAccountUnlocked,
		Subject:  account,
		Success:  true,
		Metadata: map[string]string{"admin": adminIdentity},
	})
	return nil
}

func (l *RateLimiter) decode(result interface{}, reasons map[int64]ports.Reason) (ports.Decision, error) {
	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return ports.Decision{}, apperrors.Internalf("rate limiter script: unexpected response %v", result)
	}
	status, ok := parts[0].(int64)
	if !ok {
		return ports.Decision{}, apperrors.Internalf("rate limiter script: unexpected status %v", parts[0])
	}
	reason, ok := reasons[status]
	if !ok {
		return ports.Decision{}, apperrors.Internalf("rate limiter script: unknown status %d", status)
	}
	if reason == ports.ReasonAllowed || reason == ports.ReasonFailureRecorded {
		return ports.Decision{Reason: reason}, nil
	}
	retryMs, _ := parts[1].(int64)
	return ports.Decision{
		Blocked:    true,
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
		Reason:     reason,
	}, nil
}

// recordFailureBestEffort mirrors recordFailureScript with discrete
// commands. Races between the read and the writes are accepted; this path
// must never be selected outside tests.
func (l *RateLimiter) recordFailureBestEffort(ctx context.Context, ip, account string) (ports.Decision, error) {
	ipCount, err := l.client.Incr(ctx, ipKey(ip)).Result()
	if err != nil {
		return ports.Decision{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "rate limiter record failed")
	}
	if ipCount == 1 {
		_ = l.client.PExpire(ctx, ipKey(ip), ipWindow)
	}
	if ipCount > int64(l.cfg.IPMaxPerMinute) {
		ttl, _ := l.client.PTTL(ctx, ipKey(ip)).Result()
		return ports.Decision{Blocked: true, RetryAfter: ttl, Reason: ports.ReasonIPRateLimited}, nil
	}

	fails, err := l.client.Incr(ctx, failKey(account)).Result()
	if err != nil {
		return ports.Decision{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "rate limiter record failed")
	}
	if fails == 1 {
		_ = l.client.PExpire(ctx, failKey(account), l.cfg.FailureWindow)
	}
	if fails >= int64(l.cfg.LockoutThreshold) {
		if err := l.client.Set(ctx, lockKey(account), "1", l.cfg.LockoutDuration).Err(); err != nil {
			return ports.Decision{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "rate limiter record failed")
		}
		_ = l.client.Del(ctx, failKey(account))
		return ports.Decision{Blocked: true, RetryAfter: l.cfg.LockoutDuration, Reason: ports.ReasonAccountLockedNow}, nil
	}
	return ports.Decision{Reason: ports.ReasonFailureRecorded}, nil
}

func (l *RateLimiter) checkAndIncrementIPBestEffort(ctx context.Context, ip string) (ports.Decision, error) {
	count, err := l.client.Incr(ctx, ipKey(ip)).Result()
	if err != nil {
		return ports.Decision{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "rate limiter check failed")
	}
	if count == 1 {
		_ = l.client.PExpire(ctx, ipKey(ip), ipWindow)
	}
	if count > int64(l.cfg.IPMaxPerMinute) {
		ttl, _ := l.client.PTTL(ctx, ipKey(ip)).Result()
		return ports.Decision{Blocked: true, RetryAfter: ttl, Reason: ports.ReasonIPRateLimited}, nil
	}
	return ports.Decision{Reason: ports.ReasonAllowed}, nil
}

// Health pings the underlying Redis connection.
func (l *RateLimiter) Health(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "redis ping failed")
	}
	return nil
}

// LockoutRemaining reports the remaining lockout for an account, zero when
// not locked. Used by admin tooling.
func (l *RateLimiter) LockoutRemaining(ctx context.Context, account string) (time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, lockKey(account)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "rate limiter lookup failed")
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

