package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/target/console-gate/internal/observability/statsd"
)

// LifecycleCoordinator tracks a connection from successful handshake to
// disconnect. It assigns the client identifier, emits connect/disconnect
// metrics, and drives the admission release when the connection ends.
type LifecycleCoordinator struct {
	metrics statsd.Sink
	logger  *slog.Logger
	active  atomic.Int64
}

// NewLifecycleCoordinator constructs a lifecycle coordinator.
func NewLifecycleCoordinator(metrics statsd.Sink, logger *slog.Logger) *LifecycleCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleCoordinator{metrics: metrics, logger: logger}
}

// Conn is a live, admitted connection.
type Conn struct {
	// ClientID uniquely identifies this connection in logs and messages.
	ClientID string

	admission   *Admission
	connectedAt time.Time
	closeReason string
	closed      atomic.Bool
}

// SetCloseReason records why the connection ended, for the disconnect log
// and metric. Unset means a normal peer close. Call before Disconnect, from
// the goroutine driving the connection.
func (c *Conn) SetCloseReason(reason string) {
	c.closeReason = reason
}

// Connect registers a connection whose handshake just completed. Ownership
// of the admission slot moves here; Disconnect is the sole releaser from
// this point on.
func (l *LifecycleCoordinator) Connect(ctx context.Context, adm *Admission) *Conn {
	adm.HandshakeComplete()

	conn := &Conn{
		ClientID:    uuid.NewString(),
		admission:   adm,
		connectedAt: time.Now(),
	}

	attrs := []any{"client_id", conn.ClientID}
	if sess := adm.Session(); sess != nil {
		attrs = append(attrs, "session_id", sess.ID, "user_id", sess.User.ID)
	}
	l.logger.InfoContext(ctx, "connection established", attrs...)

	active := l.active.Add(1)
	if l.metrics != nil {
		l.metrics.Count("conn.connected", 1, map[string]string{
			"path": admissionPath(adm.Session()),
		})
		l.metrics.Gauge("conn.active", float64(active), nil)
	}
	return conn
}

// Disconnect releases the connection's admission slot, logs the close with
// its reason, and emits the disconnect metrics. Safe to call more than
// once: the slot release is idempotent and the bookkeeping runs only on
// the first call.
func (l *LifecycleCoordinator) Disconnect(ctx context.Context, conn *Conn) {
	conn.admission.Release(ctx)

	if !conn.closed.CompareAndSwap(false, true) {
		return
	}

	reason := conn.closeReason
	if reason == "" {
		reason = "normal"
	}

	l.logger.InfoContext(ctx, "connection closed",
		"client_id", conn.ClientID,
		"reason", reason,
		"duration", time.Since(conn.connectedAt).String())

	active := l.active.Add(-1)
	if l.metrics != nil {
		l.metrics.Count("conn.disconnected", 1, map[string]string{"reason": reason})
		l.metrics.Gauge("conn.active", float64(active), nil)
		l.metrics.Timing("conn.lifetime", time.Since(conn.connectedAt), nil)
	}
}
