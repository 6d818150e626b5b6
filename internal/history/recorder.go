package history

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueue   = 256
	defaultTimeout = 5 * time.Second
)

// Recorder fans events out to sinks from its own goroutine so that callers
// never block on database I/O. Events are dropped (and logged) when the queue
// is full.
type Recorder struct {
	sinks   []Sink
	log     *slog.Logger
	queue   chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder starts a recorder for sinks. A recorder without sinks accepts
// and discards events.
func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		sinks:   append([]Sink(nil), sinks...),
		log:     log,
		queue:   make(chan Event, defaultQueue),
		timeout: defaultTimeout,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues e. It never blocks.
func (r *Recorder) Record(e Event) {
	if r == nil || len(r.sinks) == 0 {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warn("history queue full, event dropped", "type", e.Type, "role", e.Record.Role)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			if err := s.Send(ctx, e); err != nil {
				r.log.Warn("history sink failed", "type", e.Type, "role", e.Record.Role, "error", err)
			}
			cancel()
		}
	}
}

// Close drains queued events, then closes every sink that implements io.Closer.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
	var first error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
