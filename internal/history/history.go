// Package history defines a secondary, optional audit trail of process
// lifecycle events (start/stop/crash/restart) for operators who want
// long-term analytics beyond what internal/persistence's recovery snapshot
// keeps. It is never the source of truth for recovery; a Sink that is slow
// or unreachable must never block the Supervisor Loop or Command
// Dispatcher, so every Send call from those packages is fire-and-forget.
// Grounded on the teacher's internal/history/history.go (EventType, Event,
// Sink interface), generalized from the teacher's start/stop-only EventType
// set to also cover crash and restart, and from its store.Record payload
// (started for a general-purpose PID recorder) to the fields adasa's
// ManagedProcess actually carries.
package history

import (
	"context"
	"time"
)

// EventType classifies a lifecycle event recorded by a Sink.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventCrash   EventType = "crash"
	EventRestart EventType = "restart"
)

// Event is one lifecycle transition worth recording for analytics.
type Event struct {
	Type       EventType
	OccurredAt time.Time
	ProcessID  int64
	Name       string
	PID        int
	State      string
	ExitCode   int
	ExitSignal string
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use; Send should return promptly since callers invoke it
// from a goroutine without waiting on the result beyond logging failure.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
