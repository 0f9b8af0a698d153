package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	domainauth "github.com/target/console-gate/internal/domain/auth"
	apperrors "github.com/target/console-gate/internal/errors"
	"github.com/target/console-gate/internal/observability/statsd"
	"github.com/target/console-gate/internal/ports"
)

// AdmissionConfig tunes connection admission.
type AdmissionConfig struct {
	// MaxConnections caps concurrent admitted connections in this process.
	MaxConnections int64

	// ValidateTimeout bounds the session validation call so a slow cache
	// cannot stall the accept path.
	ValidateTimeout time.Duration

	// RetryAfter is the hint returned with capacity rejections.
	RetryAfter time.Duration
}

// AdmissionController gates long-lived connection requests: a process-wide
// connection cap, session validation with a bounded timeout, and a
// per-session cap enforced through the shared counter.
//
// While draining, new admissions on every path are rejected with a retry
// hint and the readiness probe reports not-ready; established connections
// keep running until they disconnect on their own.
type AdmissionController struct {
	sessions ports.SessionStore
	counter  ports.ConnCounter
	sem      *semaphore.Weighted
	cfg      AdmissionConfig
	metrics  statsd.Sink
	logger   *slog.Logger
	draining atomic.Bool
}

// NewAdmissionController constructs an admission controller.
func NewAdmissionController(
	sessions ports.SessionStore,
	counter ports.ConnCounter,
	cfg AdmissionConfig,
	metrics statsd.Sink,
	logger *slog.Logger,
) *AdmissionController {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdmissionController{
		sessions: sessions,
		counter:  counter,
		sem:      semaphore.NewWeighted(cfg.MaxConnections),
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetDraining flips the drain flag, normally on shutdown before the
// listener closes.
func (c *AdmissionController) SetDraining(draining bool) {
	c.draining.Store(draining)
}

// Draining reports the drain flag for readiness probes.
func (c *AdmissionController) Draining() bool {
	return c.draining.Load()
}

// Admit runs the admission sequence for a connection request. An empty token
// takes the anonymous path: only the process-wide cap applies. A non-empty
// token must validate; the per-session cap then applies on top of the
// process-wide one.
//
// A granted admission MUST be released exactly once. The caller keeps
// ownership until it calls HandshakeComplete; see Admission.
func (c *AdmissionController) Admit(ctx context.Context, token, clientIP, userAgent string) (*Admission, error) {
	if c.draining.Load() {
		c.reject("draining")
		return nil, apperrors.UnavailableRetry("shutting down, not accepting connections", c.retryAfterSeconds())
	}

	var sess *domainauth.Session
	if token != "" {
		validateCtx, cancel := context.WithTimeout(ctx, c.cfg.ValidateTimeout)
		defer cancel()

		var err error
		sess, err = c.sessions.Validate(validateCtx, token, clientIP, userAgent)
		if err != nil {
			c.reject("unavailable")
			return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "session validation unavailable")
		}
		if sess == nil {
			c.reject("unauthenticated")
			return nil, apperrors.Unauthenticated("invalid session")
		}
	}

	if !c.sem.TryAcquire(1) {
		c.reject("global_capacity")
		return nil, apperrors.Capacity("connection capacity reached", c.retryAfterSeconds())
	}

	adm := &Admission{controller: c, session: sess}

	if sess != nil {
		ok, count, err := c.counter.Acquire(ctx, sess.ID)
		if err != nil {
			c.sem.Release(1)
			c.reject("unavailable")
			return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "connection accounting unavailable")
		}
		if !ok {
			c.sem.Release(1)
			c.reject("session_capacity")
			return nil, apperrors.Capacity("too many connections for this session", c.retryAfterSeconds())
		}
		adm.counted = true
		c.logger.DebugContext(ctx, "connection admitted",
			"session_id", sess.ID, "session_connections", count)
	}

	if c.metrics != nil {
		c.metrics.Count("admission.granted", 1, map[string]string{
			"path": admissionPath(sess),
		})
	}
	return adm, nil
}

func (c *AdmissionController) retryAfterSeconds() int {
	return ports.Decision{RetryAfter: c.cfg.RetryAfter}.RetryAfterSeconds()
}

func (c *AdmissionController) reject(reason string) {
	if c.metrics != nil {
		c.metrics.Count("admission.rejected", 1, map[string]string{"reason": reason})
	}
}

func admissionPath(sess *domainauth.Session) string {
	if sess == nil {
		return "anonymous"
	}
	return "session"
}

// Admission is a granted connection slot. Ownership starts with the
// admitting request handler: if the handshake never completes, the handler's
// deferred Release returns the slot. HandshakeComplete transfers ownership
// to the connection's lifecycle, whose disconnect path then calls Release.
// The released flag guarantees exactly one effective release no matter which
// owner runs last, including the panic path.
type Admission struct {
	controller *AdmissionController
	session    *domainauth.Session
	counted    bool

	handshake atomic.Bool
	released  atomic.Bool
}

// Session returns the validated session, nil for anonymous admissions.
func (a *Admission) Session() *domainauth.Session {
	return a.session
}

// HandshakeComplete marks the protocol handshake as finished, handing slot
// ownership from the request handler to the connection lifecycle.
func (a *Admission) HandshakeComplete() {
	a.handshake.Store(true)
}

// HandshakeCompleted reports whether ownership was handed off.
func (a *Admission) HandshakeCompleted() bool {
	return a.handshake.Load()
}

// ReleaseIfPending releases the slot only when the handshake never
// completed. Request handlers defer this; it is a no-op once ownership has
// moved to the connection lifecycle.
func (a *Admission) ReleaseIfPending(ctx context.Context) {
	if a.handshake.Load() {
		return
	}
	a.Release(ctx)
}

// Release returns the slot. Idempotent: the counter decrements and the
// semaphore releases at most once. Counter errors are logged and swallowed;
// the process-wide slot is returned regardless, and the counter's TTL
// bounds any drift.
func (a *Admission) Release(ctx context.Context) {
	if !a.released.CompareAndSwap(false, true) {
		return
	}
	if a.counted {
		if _, err := a.controller.counter.Release(ctx, a.session.ID); err != nil {
			a.controller.logger.WarnContext(ctx, "connection counter release failed",
				"session_id", a.session.ID, "error", err)
		}
	}
	a.controller.sem.Release(1)
}
