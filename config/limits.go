package config

import "time"

// RateLimitConfig tunes the authentication rate limiter. IP counters use a
// fixed 60-second window; account failures accumulate over FailureWindow and
// trip a lockout at LockoutThreshold.
type RateLimitConfig struct {
	// IPMaxPerMinute caps authentication attempts per client IP per minute.
	IPMaxPerMinute int `env:"IP_MAX_PER_MINUTE" envDefault:"30"`

	// CreateMaxPerMinute caps session creations per client IP per minute.
	CreateMaxPerMinute int `env:"CREATE_MAX_PER_MINUTE" envDefault:"10"`

	// ValidateMaxPerMinute caps session validations per client IP per minute.
	// Exceeding it is indistinguishable from "not logged in" to the caller.
	ValidateMaxPerMinute int `env:"VALIDATE_MAX_PER_MINUTE" envDefault:"300"`

	// FailureWindow is how long account failure counters accumulate.
	FailureWindow time.Duration `env:"FAILURE_WINDOW" envDefault:"10m"`

	// LockoutThreshold is the number of failures that locks an account.
	LockoutThreshold int `env:"LOCKOUT_THRESHOLD" envDefault:"5"`

	// LockoutDuration is how long a tripped lockout lasts.
	LockoutDuration time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
}

// Sanitize applies guardrails to rate limit configuration values.
func (r *RateLimitConfig) Sanitize() {
	if r.IPMaxPerMinute <= 0 {
		r.IPMaxPerMinute = 30
	}
	if r.CreateMaxPerMinute <= 0 {
		r.CreateMaxPerMinute = 10
	}
	if r.ValidateMaxPerMinute <= 0 {
		r.ValidateMaxPerMinute = 300
	}
	if r.FailureWindow <= 0 {
		r.FailureWindow = 10 * time.Minute
	}
	if r.LockoutThreshold <= 0 {
		r.LockoutThreshold = 5
	}
	if r.LockoutDuration <= 0 {
		r.LockoutDuration = 15 * time.Minute
	}
}

// AdmissionConfig tunes persistent-connection admission. MaxConnections is a
// per-process cap; horizontal scaling multiplies it by the pod count.
type AdmissionConfig struct {
	// MaxConnections is the process-wide concurrent connection cap.
	MaxConnections int `env:"MAX_CONNECTIONS" envDefault:"4096"`

	// PerSessionMax caps simultaneously admitted connections per session.
	PerSessionMax int `env:"PER_SESSION_MAX" envDefault:"8"`

	// CounterTTL bounds per-session counters so a crashed process cannot
	// permanently inflate them.
	CounterTTL time.Duration `env:"COUNTER_TTL" envDefault:"24h"`

	// ValidateTimeout bounds the session-validation call during admission.
	ValidateTimeout time.Duration `env:"VALIDATE_TIMEOUT" envDefault:"3s"`

	// RetryAfter is the hint returned with 503 rejections.
	RetryAfter time.Duration `env:"RETRY_AFTER" envDefault:"10s"`
}

// Sanitize applies guardrails to admission configuration values.
func (a *AdmissionConfig) Sanitize() {
	if a.MaxConnections <= 0 {
		a.MaxConnections = 4096
	}
	if a.PerSessionMax <= 0 {
		a.PerSessionMax = 8
	}
	if a.CounterTTL <= 0 {
		a.CounterTTL = 24 * time.Hour
	}
	if a.ValidateTimeout <= 0 {
		a.ValidateTimeout = 3 * time.Second
	}
	if a.RetryAfter <= 0 {
		a.RetryAfter = 10 * time.Second
	}
}
