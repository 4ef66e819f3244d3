package registry

import (
	"time"

	"github.com/loykin/adasa/internal/lifecycle"
)

// Stats holds the last-sampled resource usage for a ManagedProcess.
type Stats struct {
	CPUPercent float32
	MemoryRSS  uint64
	UpdatedAt  time.Time
}

// Violations counts how many times a running process has been observed
// over its configured memory/cpu limits.
type Violations struct {
	MemoryCount int
	CPUCount    int
}

// ManagedProcess is the mutable runtime entity spec.md section 3 describes.
type ManagedProcess struct {
	ID     int64
	Name   string
	Config ProcessConfig
	State  lifecycle.State

	// PID is meaningful only while State.HasPID() is true.
	PID int

	// StartTimeTicks is the OS-reported start time of PID (see
	// internal/procutil.StartTime), recorded at spawn time so a restart
	// can later confirm a restored pid is still the same process rather
	// than one the OS has since reused for something else. Zero when
	// unknown (e.g. non-Linux).
	StartTimeTicks uint64

	SpawnedAt     time.Time
	LastExitAt    time.Time
	LastRestartAt time.Time

	RestartCount   int
	RecentRestarts []time.Time

	ExitCode   int
	ExitSignal string

	Stats      Stats
	Violations Violations

	// BackoffUntil is the monotonic instant before which no restart
	// attempt is made for this entry. Zero when not backing off.
	BackoffUntil time.Time

	// ConsecutiveFailures counts restart attempts since the entry was
	// last observed Running; feeds lifecycle.NextBackoff.
	ConsecutiveFailures int

	// OrphanReason is set when this entry was re-attached at startup but
	// its pid did not match a live process (apperrors.KindOrphanedAtRestart).
	OrphanReason string
}

// Snapshot returns a shallow copy of p suitable for handing to a caller
// outside the registry lock (e.g. for List or serialization). Slice fields
// are copied so the caller cannot observe or cause mutation races.
func (p *ManagedProcess) Snapshot() ManagedProcess {
	cp := *p
	cp.RecentRestarts = append([]time.Time(nil), p.RecentRestarts...)
	cp.Config.Args = append([]string(nil), p.Config.Args...)
	if p.Config.Env != nil {
		cp.Config.Env = make(map[string]string, len(p.Config.Env))
		for k, v := range p.Config.Env {
			cp.Config.Env[k] = v
		}
	}
	return cp
}
