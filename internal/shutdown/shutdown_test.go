//go:build !windows

package shutdown

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/loykin/adasa/internal/dispatcher"
	"github.com/loykin/adasa/internal/lifecycle"
	"github.com/loykin/adasa/internal/persistence"
	"github.com/loykin/adasa/internal/registry"
)

func TestShutdownStopsRunningEntriesAndPersists(t *testing.T) {
	reg := registry.New()
	disp := dispatcher.New(reg, nil)

	results := disp.Start(registry.ProcessConfig{Name: "svc", Script: "/bin/sleep", Args: []string{"3600"}, StopTimeoutSecs: 2})
	if results[0].Error != nil {
		t.Fatal(results[0].Error)
	}

	path := filepath.Join(t.TempDir(), "state.json")
	coord := New(reg, disp, path, func() int64 { return 99 }, nil)
	coord.Shutdown(context.Background())

	entry := reg.LookupByID(results[0].ID)
	if entry.State != lifecycle.Stopped {
		t.Fatalf("expected entry Stopped after shutdown, got %s", entry.State)
	}

	snap, err := persistence.Load(path)
	if err != nil {
		t.Fatalf("expected a persisted snapshot, got error: %v", err)
	}
	if snap.NextID != 99 || len(snap.Entries) != 1 {
		t.Fatalf("unexpected snapshot after shutdown: %+v", snap)
	}
}

func TestShutdownWithEmptyRegistryStillPersists(t *testing.T) {
	reg := registry.New()
	disp := dispatcher.New(reg, nil)
	path := filepath.Join(t.TempDir(), "state.json")

	coord := New(reg, disp, path, func() int64 { return 1 }, nil)
	coord.Shutdown(context.Background())

	snap, err := persistence.Load(path)
	if err != nil {
		t.Fatalf("expected snapshot write even with an empty registry: %v", err)
	}
	if len(snap.Entries) != 0 {
		t.Fatalf("expected no entries, got %+v", snap.Entries)
	}
}
