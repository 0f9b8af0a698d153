package notify

import (
	"context"
	"log/slog"

	"github.com/target/console-gate/internal/audit"
)

// LockoutNotifier is an audit sink that forwards account lockout activity to
// external notification sinks. Everything else in the audit stream passes it
// by: operators page on lockouts, they read the rest in the audit log.
type LockoutNotifier struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewLockoutNotifier builds a notifier fanning out to the given sinks.
func NewLockoutNotifier(logger *slog.Logger, sinks ...Sink) *LockoutNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LockoutNotifier{sinks: sinks, logger: logger}
}

// Emit implements audit.Sink. Delivery failures are logged, never surfaced:
// the account is already locked whether or not anyone gets paged.
func (n *LockoutNotifier) Emit(ctx context.Context, event audit.Event) {
	payload, ok := payloadFor(event)
	if !ok {
		return
	}
	for _, sink := range n.sinks {
		if err := sink.SendSecurityEvent(ctx, payload); err != nil {
			n.logger.ErrorContext(ctx, "security notification delivery failed",
				"event_type", payload.EventType,
				"subject", payload.Account,
				"error", err)
		}
	}
}

func payloadFor(event audit.Event) (SecurityEventPayload, bool) {
	var severity string
	switch event.Type {
	case audit.TypeAccountLocked:
		severity = SeverityCritical
	case audit.TypeAccountUnlocked:
		severity = SeverityInfo
	default:
		return SecurityEventPayload{}, false
	}
	return SecurityEventPayload{
		EventType:  event.Type,
		Account:    event.Subject,
		SessionID:  event.SessionID,
		IP:         event.IP,
		Reason:     event.Reason,
		Severity:   severity,
		OccurredAt: event.Timestamp,
		Metadata:   event.Metadata,
	}, true
}

var _ audit.Sink = (*LockoutNotifier)(nil)
