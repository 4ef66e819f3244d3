// Package lifecycle holds the process state machine and restart-backoff policy,
// kept independent of the registry so both the dispatcher and the supervisor
// loop can drive transitions through a single, pure decision surface.
package lifecycle

import (
	"encoding/json"
	"fmt"
)

// State is one of the states a ManagedProcess can occupy.
type State int32

const (
	Starting State = iota
	Running
	Stopping
	Stopped
	Restarting
	Errored
	Deleted
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Restarting:
		return "restarting"
	case Errored:
		return "errored"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// HasPID reports whether entries in this state carry a live OS pid,
// per spec.md invariant 1.
func (s State) HasPID() bool {
	switch s {
	case Starting, Running, Stopping, Restarting:
		return true
	default:
		return false
	}
}

// CanStart reports whether a start command may be issued from this state.
func CanStart(from State) bool {
	switch from {
	case Stopped, Errored, Deleted:
		return true
	default:
		return false
	}
}

// CanStop reports whether a stop command may be issued from this state.
func CanStop(from State) bool {
	switch from {
	case Running, Starting, Restarting:
		return true
	default:
		return false
	}
}

// CanDelete reports whether a delete command may be issued from this state.
func CanDelete(from State) bool {
	return from != Deleted
}

// MarshalJSON renders the state as its lowercase name so persisted
// snapshots and IPC replies stay human-readable.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the lowercase name produced by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, candidate := range []State{Starting, Running, Stopping, Stopped, Restarting, Errored, Deleted} {
		if candidate.String() == name {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("lifecycle: unknown state %q", name)
}
