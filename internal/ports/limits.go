package ports

import (
	"context"
	"time"
)

// Reason is the closed set of rate-limiter decision reasons. Callers switch
// on it exhaustively and translate it into user-facing messaging; the raw
// value never reaches a client.
type Reason string

const (
	ReasonAllowed          Reason = "allowed"
	ReasonIPRateLimited    Reason = "ip_rate_limit"
	ReasonAccountLocked    Reason = "account_locked"
	ReasonAccountLockedNow Reason = "account_locked_now"
	ReasonFailureRecorded  Reason = "failure_recorded"
)

// Decision is the outcome of a rate-limiter operation.
type Decision struct {
	Blocked    bool
	RetryAfter time.Duration
	Reason     Reason
}

// RetryAfterSeconds rounds the retry hint up to whole seconds for headers.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}

// RateLimiter enforces the two-phase authentication throttle protocol:
// check before attempting, record after a failure, clear after success.
type RateLimiter interface {
	// CheckOnly reports whether the ip/account pair may attempt
	// authentication without consuming any budget.
	CheckOnly(ctx context.Context, ip, account string) (Decision, error)

	// RecordFailure records a failed attempt and reports the resulting
	// state, including a lockout triggered by this failure.
	RecordFailure(ctx context.Context, ip, account string) (Decision, error)

	// ClearOnSuccess resets the account's failure state after a
	// successful authentication.
	ClearOnSuccess(ctx context.Context, account string) error

	// CheckAndIncrementIP checks and consumes the caller's IP budget in
	// one step, for flows with no account identifier at check time.
	CheckAndIncrementIP(ctx context.Context, ip string) (Decision, error)

	// Unlock clears an account's counters outside the normal flow,
	// recording the acting administrator.
	Unlock(ctx context.Context, account, adminIdentity string) error

	// LockoutRemaining reports the remaining lockout, zero when unlocked.
	LockoutRemaining(ctx context.Context, account string) (time.Duration, error)
}

// ConnCounter tracks concurrent connection counts per session across all
// instances sharing the cache.
type ConnCounter interface {
	// Acquire reserves a connection slot for the session, reporting
	// whether it was granted and the resulting count.
	Acquire(ctx context.Context, sessionID string) (bool, int, error)

	// Release returns a previously acquired slot. Safe to call more than
	// once for the same slot.
	Release(ctx context.Context, sessionID string) (int, error)

	// Count reports the session's current connection count.
	Count(ctx context.Context, sessionID string) (int, error)
}
