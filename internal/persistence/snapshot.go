// Package persistence serializes the registry to a single JSON file and
// restores it at daemon startup, per spec.md section 4.9. New relative to
// the teacher, whose internal/store is a SQL-only audit trail rather than a
// registry snapshot; the record shape below is grounded on the shape of
// the teacher's store.Record (internal/store/store.go: Name/PID/LastStatus/
// UpdatedAt) extended with the fields spec.md's snapshot format requires.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/adasa/internal/lifecycle"
	"github.com/loykin/adasa/internal/registry"
)

// SnapshotVersion is bumped whenever the on-disk record shape changes
// incompatibly.
const SnapshotVersion = 1

// Entry is one persisted ManagedProcess, per spec.md section 4.9's record
// shape: "{id, name, config, state, pid_if_any, restart_count, spawned_at,
// last_exit_at}".
type Entry struct {
	ID             int64                  `json:"id"`
	Name           string                 `json:"name"`
	Config         registry.ProcessConfig `json:"config"`
	State          lifecycle.State        `json:"state"`
	PID            int                    `json:"pid,omitempty"`
	StartTimeTicks uint64                 `json:"start_time_ticks,omitempty"`
	RestartCount   int                    `json:"restart_count"`
	SpawnedAt      time.Time              `json:"spawned_at,omitempty"`
	LastExitAt     time.Time              `json:"last_exit_at,omitempty"`
}

// Snapshot is the full on-disk image of the registry.
type Snapshot struct {
	Version int     `json:"version"`
	NextID  int64   `json:"next_id"`
	Entries []Entry `json:"entries"`
}

// FromRegistry builds a Snapshot from every non-Deleted entry, per
// invariant 6 ("persisted snapshot contains every entry whose state is not
// Deleted").
func FromRegistry(reg *registry.Registry, nextID int64) Snapshot {
	list := reg.List()
	snap := Snapshot{Version: SnapshotVersion, NextID: nextID, Entries: make([]Entry, 0, len(list))}
	for _, p := range list {
		snap.Entries = append(snap.Entries, Entry{
			ID:             p.ID,
			Name:           p.Name,
			Config:         p.Config,
			State:          p.State,
			PID:            p.PID,
			StartTimeTicks: p.StartTimeTicks,
			RestartCount:   p.RestartCount,
			SpawnedAt:      p.SpawnedAt,
			LastExitAt:     p.LastExitAt,
		})
	}
	return snap
}

// Save writes snap to path using write-to-temp-then-rename for atomicity,
// per spec.md section 4.9.
func Save(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("persistence: create state dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("persistence: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("persistence: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("persistence: rename temp file into place: %w", err)
	}
	return nil
}

// Load reads the snapshot at path. A missing file is reported as an empty
// Snapshot with no error, matching first-run behavior.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{Version: SnapshotVersion, NextID: 1}, nil
		}
		return Snapshot{}, fmt.Errorf("persistence: read %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("persistence: parse %s: %w", path, err)
	}
	return snap, nil
}
