package audit

// Package audit defines the structured audit event model and sinks. The
// session core emits events fire-and-forget: a degraded sink must never
// block or fail the operation that produced the event.

import (
	"context"
	"log/slog"
	"time"
)

// Event types emitted by the session and admission core.
const (
	TypeSessionCreated      = "session_created"
	TypeSessionCreateDenied = "session_create_denied"
	TypeSessionInvalid      = "session_invalid"
	TypeSessionRotated      = "session_rotated"
	TypeSessionRevoked      = "session_revoked"
	TypeLoginSuccess        = "login_success"
	TypeLoginFailure        = "login_failure"
	TypeAccountLocked       = "account_locked"
	TypeAccountUnlocked     = "account_unlocked"
)

// Event is the canonical audit record. Reason holds the specific failure
// cause and is recorded server-side only, never echoed to clients.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	Subject   string            `json:"subject,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoopSink drops audit events.
type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) {}

// LogSink writes audit events to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, event Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "audit",
		slog.String("type", event.Type),
		slog.String("subject", event.Subject),
		slog.String("session_id", event.SessionID),
		slog.String("ip", event.IP),
		slog.Bool("success", event.Success),
		slog.String("reason", event.Reason),
	)
}

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, event Event) {
	for _, sink := range f {
		sink.Emit(ctx, event)
	}
}

// stamp fills the timestamp if the producer left it zero.
func stamp(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}
