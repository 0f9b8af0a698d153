package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher decouples event producers from a possibly slow downstream sink.
// Emit enqueues without blocking; when the buffer is full the event is
// dropped and counted, because stalling an auth request on audit delivery is
// worse than losing an event.
type Dispatcher struct {
	downstream Sink
	logger     *slog.Logger
	events     chan Event

	mu      sync.Mutex
	dropped uint64
	closed  bool
	done    chan struct{}
}

// NewDispatcher starts a Dispatcher forwarding to downstream with the given
// buffer size.
func NewDispatcher(downstream Sink, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		downstream: downstream,
		logger:     logger,
		events:     make(chan Event, buffer),
		done:       make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit implements Sink. It never blocks the caller.
func (d *Dispatcher) Emit(_ context.Context, event Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	select {
	case d.events <- stamp(event):
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops accepting events and waits for the queue to drain, bounded by
// the given timeout.
func (d *Dispatcher) Close(timeout time.Duration) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.events)
	select {
	case <-d.done:
	case <-time.After(timeout):
		d.logger.Warn("audit dispatcher close timed out with events in flight")
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		// Delivery gets its own bounded context so one stuck sink call
		// cannot wedge the queue forever.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		d.downstream.Emit(ctx, event)
		cancel()
	}
}

var _ Sink = (*Dispatcher)(nil)
