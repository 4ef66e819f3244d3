//go:build !windows

package persistence

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/adasa/internal/lifecycle"
	"github.com/loykin/adasa/internal/procutil"
	"github.com/loykin/adasa/internal/registry"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	reg := registry.New()
	p, err := reg.Create("svc", registry.ProcessConfig{Name: "svc", Script: "/bin/sleep", Args: []string{"5"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.WithMut(p.ID, func(mp *registry.ManagedProcess) { mp.State = lifecycle.Running }); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetPID(p.ID, 4242); err != nil {
		t.Fatal(err)
	}

	snap := FromRegistry(reg, 7)
	if err := Save(path, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.NextID != 7 || len(loaded.Entries) != 1 {
		t.Fatalf("unexpected snapshot: %+v", loaded)
	}
	entry := loaded.Entries[0]
	if entry.Name != "svc" || entry.PID != 4242 || entry.State != lifecycle.Running {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestLoadMissingFileReturnsEmptySnapshot(t *testing.T) {
	snap, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Entries) != 0 || snap.NextID != 1 {
		t.Fatalf("expected empty first-run snapshot, got %+v", snap)
	}
}

func TestReconcileReattachesLivePID(t *testing.T) {
	cmd := exec.Command("/bin/sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start helper process: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	snap := Snapshot{
		Version: SnapshotVersion,
		NextID:  5,
		Entries: []Entry{
			{ID: 1, Name: "live", State: lifecycle.Running, PID: cmd.Process.Pid, SpawnedAt: time.Now()},
		},
	}

	reg := registry.New()
	Reconcile(reg, snap)

	entry := reg.LookupByID(1)
	if entry == nil {
		t.Fatal("expected entry to be restored")
	}
	if entry.State != lifecycle.Running || entry.PID != cmd.Process.Pid {
		t.Fatalf("expected live pid to be reattached as Running, got %+v", entry)
	}
	if entry.OrphanReason != "" {
		t.Fatalf("expected no orphan reason for a live pid, got %q", entry.OrphanReason)
	}
}

func TestReconcileMarksDeadPIDOrphaned(t *testing.T) {
	cmd := exec.Command("/bin/true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("helper process failed: %v", err)
	}
	deadPID := cmd.Process.Pid

	snap := Snapshot{
		Version: SnapshotVersion,
		NextID:  3,
		Entries: []Entry{
			{ID: 1, Name: "gone", State: lifecycle.Running, PID: deadPID, SpawnedAt: time.Now()},
		},
	}

	reg := registry.New()
	Reconcile(reg, snap)

	entry := reg.LookupByID(1)
	if entry == nil {
		t.Fatal("expected entry to be restored")
	}
	if entry.State != lifecycle.Errored {
		t.Fatalf("expected Errored for a pid that no longer exists, got %s", entry.State)
	}
	if entry.OrphanReason == "" {
		t.Fatal("expected OrphanReason to be set")
	}
	if entry.PID != 0 {
		t.Fatalf("expected pid cleared on orphan, got %d", entry.PID)
	}
}

func TestReconcileMarksReusedPIDOrphaned(t *testing.T) {
	cmd := exec.Command("/bin/sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start helper process: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	realTicks, ok := procutil.StartTime(cmd.Process.Pid)
	if !ok {
		t.Skip("/proc/<pid>/stat not available on this platform")
	}

	snap := Snapshot{
		Version: SnapshotVersion,
		NextID:  5,
		Entries: []Entry{
			// wrong recorded start time: pretend this pid belonged to an
			// earlier, already-reaped process.
			{ID: 1, Name: "stale", State: lifecycle.Running, PID: cmd.Process.Pid, StartTimeTicks: realTicks + 1, SpawnedAt: time.Now()},
		},
	}

	reg := registry.New()
	Reconcile(reg, snap)

	entry := reg.LookupByID(1)
	if entry == nil {
		t.Fatal("expected entry to be restored")
	}
	if entry.State != lifecycle.Errored || entry.OrphanReason == "" {
		t.Fatalf("expected a mismatched start time to be treated as orphaned, got %+v", entry)
	}
}

func TestReconcileRestoresStoppedEntryWithoutProbing(t *testing.T) {
	snap := Snapshot{
		Version: SnapshotVersion,
		NextID:  2,
		Entries: []Entry{
			{ID: 1, Name: "idle", State: lifecycle.Stopped},
		},
	}

	reg := registry.New()
	Reconcile(reg, snap)

	entry := reg.LookupByID(1)
	if entry == nil || entry.State != lifecycle.Stopped || entry.OrphanReason != "" {
		t.Fatalf("expected Stopped entry restored untouched, got %+v", entry)
	}
}

func TestReconcileRestoresNextID(t *testing.T) {
	reg := registry.New()
	Reconcile(reg, Snapshot{Version: SnapshotVersion, NextID: 42})

	p, err := reg.Create("next", registry.ProcessConfig{Name: "next"})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 42 {
		t.Fatalf("expected next created id to continue from restored counter, got %d", p.ID)
	}
}

func TestCheckpointOnceSkipsUnchangedState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	reg := registry.New()
	if _, err := reg.Create("svc", registry.ProcessConfig{Name: "svc"}); err != nil {
		t.Fatal(err)
	}

	var digest string
	if err := checkpointOnce(path, reg, 2, &digest); err != nil {
		t.Fatalf("first checkpoint failed: %v", err)
	}
	info1, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := checkpointOnce(path, reg, 2, &digest); err != nil {
		t.Fatalf("second checkpoint failed: %v", err)
	}
	info2, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info1.ModTime() != info2.ModTime() {
		t.Fatal("expected unchanged registry state to skip rewriting the file")
	}
}
