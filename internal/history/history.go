package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart        EventType = "start"
	EventSpawnFailure EventType = "spawn_failure"
	EventStop         EventType = "stop"
	EventExit         EventType = "exit"
)

// Record is the process snapshot attached to an event.
type Record struct {
	Role      string    `json:"role"`
	PID       int       `json:"pid"`
	Directory string    `json:"directory"`
	StartedAt time.Time `json:"started_at"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
