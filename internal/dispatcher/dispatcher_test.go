//go:build !windows

package dispatcher

import (
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/loykin/adasa/internal/apperrors"
	"github.com/loykin/adasa/internal/lifecycle"
	"github.com/loykin/adasa/internal/registry"
)

// TestStartStopBasic covers scenario S1 of spec.md section 8: start a
// long-lived process, observe it Running, stop it, observe it Stopped.
func TestStartStopBasic(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)

	results := d.Start(registry.ProcessConfig{Name: "a", Script: "/bin/sleep", Args: []string{"3600"}, StopTimeoutSecs: 2})
	if len(results) != 1 || results[0].Error != nil {
		t.Fatalf("unexpected start result: %+v", results)
	}
	entry := reg.LookupByID(results[0].ID)
	if entry.State != lifecycle.Running || entry.RestartCount != 0 {
		t.Fatalf("expected Running with restart_count 0, got %+v", entry)
	}

	if err := d.Stop("a", false); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	entry = reg.LookupByID(results[0].ID)
	if entry.State != lifecycle.Stopped {
		t.Fatalf("expected Stopped, got %s", entry.State)
	}
}

// TestStartNameConflictWhileRunning covers scenario S5.
func TestStartNameConflictWhileRunning(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)

	first := d.Start(registry.ProcessConfig{Name: "dup", Script: "/bin/sleep", Args: []string{"5"}})
	if first[0].Error != nil {
		t.Fatal(first[0].Error)
	}

	second := d.Start(registry.ProcessConfig{Name: "dup", Script: "/bin/sleep", Args: []string{"5"}})
	if !apperrors.Is(second[0].Error, apperrors.KindNameConflict) {
		t.Fatalf("expected NameConflict while first is Running, got %v", second[0].Error)
	}

	_ = d.Stop("dup", true)
}

func TestStartMultiInstance(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)

	results := d.Start(registry.ProcessConfig{Name: "web", Script: "/bin/sleep", Args: []string{"3600"}, Instances: 3})
	if len(results) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(results))
	}
	for i, want := range []string{"web-0", "web-1", "web-2"} {
		if results[i].Name != want {
			t.Fatalf("instance %d: expected name %s, got %s", i, want, results[i].Name)
		}
	}
	_ = d.Stop("web", true)
}

// TestRollingRestartLeavesAtMostOneInstanceAbsent covers scenario S3: while
// a rolling restart works through a multi-instance group one at a time, a
// concurrent poller must never observe more than one instance's pid absent
// from the process table at once. Restart's rolling path waits
// HealthCheckDelay (3s) after each instance before moving to the next, so
// this test runs for several real seconds; skipped under -short.
func TestRollingRestartLeavesAtMostOneInstanceAbsent(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises the real HealthCheckDelay wait between instances")
	}
	reg := registry.New()
	d := New(reg, nil)

	results := d.Start(registry.ProcessConfig{Name: "web", Script: "/bin/sleep", Args: []string{"3600"}, Instances: 3})
	if len(results) != 3 {
		t.Fatalf("expected 3 instances, got %+v", results)
	}
	ids := make([]int64, 3)
	for i, r := range results {
		ids[i] = r.ID
	}

	stop := make(chan struct{})
	var violations int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			absent := 0
			for _, id := range ids {
				p := reg.LookupByID(id)
				if p == nil || p.PID <= 0 || syscall.Kill(p.PID, 0) != nil {
					absent++
				}
			}
			if absent > 1 {
				mu.Lock()
				violations++
				mu.Unlock()
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	err := d.Restart("web", true)
	close(stop)
	wg.Wait()
	if err != nil {
		t.Fatalf("rolling restart failed: %v", err)
	}
	if violations > 0 {
		t.Fatalf("observed more than one instance absent at once, %d times", violations)
	}

	_ = d.Stop("web", true)
}

// TestStopEscalatesToKillWhenTermIgnored covers scenario S4: a child that
// traps and ignores TERM is still reaped by stop_timeout_secs, via an
// escalation to KILL.
func TestStopEscalatesToKillWhenTermIgnored(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)

	results := d.Start(registry.ProcessConfig{
		Name: "stubborn", Script: "/bin/sh",
		Args:            []string{"-c", "trap : TERM; sleep 30"},
		StopTimeoutSecs: 1,
	})
	if results[0].Error != nil {
		t.Fatalf("start failed: %v", results[0].Error)
	}
	id := results[0].ID
	// Give the shell time to install its trap; a TERM delivered before that
	// point terminates it at once.
	time.Sleep(300 * time.Millisecond)

	start := time.Now()
	if err := d.Stop("stubborn", false); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 1*time.Second {
		t.Fatalf("expected Stop to wait out stop_timeout_secs before escalating, took %v", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("expected Stop to return shortly after escalating to KILL, took %v", elapsed)
	}

	entry := reg.LookupByID(id)
	if entry.State != lifecycle.Stopped {
		t.Fatalf("expected Stopped, got %s", entry.State)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.LookupByID(id).ExitSignal != "" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if sig := reg.LookupByID(id).ExitSignal; sig != "killed" {
		t.Fatalf("expected exit signal killed, got %q", sig)
	}
}

// TestStartSurvivesLimitApplyFailure exercises spec.md section 4.2/9's
// "never refuse to spawn" contract for resource limits: MaxCPUPercent (a
// cgroup v2 write, likely to fail without root or a mounted cgroup v2 tree
// in a test sandbox) and MaxMemoryBytes (an RLIMIT_AS prlimit, which
// typically succeeds unprivileged) must never turn a successful spawn into
// a reported failure or an abandoned, unreaped child — whether or not the
// limit itself could be applied, the entry must end up Running with a live,
// tracked pid.
func TestStartSurvivesLimitApplyFailure(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)

	results := d.Start(registry.ProcessConfig{
		Name: "limited", Script: "/bin/sleep", Args: []string{"5"},
		MaxCPUPercent: 50, MaxMemoryBytes: 64 << 20, StopTimeoutSecs: 1,
	})
	if len(results) != 1 {
		t.Fatalf("expected one start result, got %+v", results)
	}
	if results[0].Error != nil {
		t.Fatalf("a resource-limit-apply failure must not be reported as a start failure, got %v", results[0].Error)
	}
	entry := reg.LookupByID(results[0].ID)
	if entry.State != lifecycle.Running || entry.PID <= 0 {
		t.Fatalf("expected the process to still be Running with a live pid, got %+v", entry)
	}
	if syscall.Kill(entry.PID, 0) != nil {
		t.Fatalf("expected pid %d to be alive and tracked, not abandoned", entry.PID)
	}

	_ = d.Stop("limited", true)
}

func TestStopSelectorNotFound(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)
	err := d.Stop("nope", false)
	if !apperrors.Is(err, apperrors.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeleteRemovesFromRegistry(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)
	results := d.Start(registry.ProcessConfig{Name: "gone", Script: "/bin/sleep", Args: []string{"5"}, StopTimeoutSecs: 1})
	id := results[0].ID

	if err := d.Delete("gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if reg.LookupByID(id) != nil {
		t.Fatalf("expected entry to be gone after Delete")
	}
}

func TestReloadConfigIsAdditiveOnly(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)
	_ = d.Start(registry.ProcessConfig{Name: "keep", Script: "/bin/sleep", Args: []string{"5"}})

	result := d.ReloadConfig([]registry.ProcessConfig{
		{Name: "keep", Script: "/bin/sleep", Args: []string{"9999"}},
		{Name: "fresh", Script: "/bin/sleep", Args: []string{"5"}},
	})
	if len(result.Existing) != 1 || result.Existing[0] != "keep" {
		t.Fatalf("expected keep reported existing, got %+v", result)
	}
	if len(result.Added) != 1 || result.Added[0] != "fresh" {
		t.Fatalf("expected fresh reported added, got %+v", result)
	}
	before := reg.LookupByName("keep")
	if before.Config.Args[0] != "5" {
		t.Fatalf("ReloadConfig must not touch an existing entry's config/pid, got args %v", before.Config.Args)
	}

	_ = d.Stop("keep", true)
	_ = d.Stop("fresh", true)
}

func TestSelectorResolvesByID(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)
	results := d.Start(registry.ProcessConfig{Name: "byid", Script: "/bin/sleep", Args: []string{"5"}})
	id := results[0].ID

	matches := Resolve(reg, strconv.FormatInt(id, 10))
	if len(matches) != 1 || matches[0].ID != id {
		t.Fatalf("expected selector by id to resolve, got %+v", matches)
	}
	_ = d.Stop("byid", true)
}
