package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityInfo     = "info"
)

// SecurityEventPayload captures the canonical data we emit for account
// security notifications.
type SecurityEventPayload struct {
	EventType  string
	Account    string
	SessionID  string
	IP         string
	Reason     string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming security notifications.
type Sink interface {
	SendSecurityEvent(ctx context.Context, payload SecurityEventPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload SecurityEventPayload) error

// SendSecurityEvent implements the Sink interface.
func (f SinkFunc) SendSecurityEvent(ctx context.Context, payload SecurityEventPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
