// Package monitor samples OS process state for the entries in a
// registry.Registry: liveness probing for crash detection, and CPU/RSS
// sampling for the stats the Command Dispatcher and HTTP introspection
// surface. Grounded on the teacher's process.Process.DetectAlive /
// isZombieLinux (internal/process/process.go), generalized from a single
// process to a batch probe over the whole registry per spec.md section 4.5.
package monitor

import (
	"bytes"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/adasa/internal/lifecycle"
	"github.com/loykin/adasa/internal/metrics"
	"github.com/loykin/adasa/internal/registry"
)

const (
	// LivenessRateLimit is the minimum interval between liveness probes
	// per spec.md section 4.5.
	LivenessRateLimit = 200 * time.Millisecond
	// StatsRateLimit is the minimum interval between CPU/RSS refreshes.
	StatsRateLimit = 2 * time.Second
)

// CrashEvent reports a previously-alive pid now found dead, carrying its
// termination cause when known.
type CrashEvent struct {
	ID         int64
	ExitCode   int
	ExitSignal string
}

// ViolationKind names a resource limit a process was found to exceed.
type ViolationKind string

const (
	ViolationMemory ViolationKind = "memory"
	ViolationCPU    ViolationKind = "cpu"
)

// Monitor tracks the last time each rate-limited operation ran, so
// DetectCrashes/UpdateAllStats calls tighter than the configured cadence are
// no-ops rather than errors, matching spec.md's "idempotent, callable from
// the supervisor loop" requirement.
type Monitor struct {
	reg *registry.Registry

	mu            sync.Mutex
	lastLiveness  time.Time
	lastStatsPass time.Time
}

// New returns a Monitor sampling reg's entries.
func New(reg *registry.Registry) *Monitor {
	return &Monitor{reg: reg}
}

// DetectCrashes probes every entry currently believed to hold a live pid
// and reports the ones no longer alive. It batches the liveness checks
// into a single pass over the registry snapshot, per spec.md's "implementations
// should batch all pids into one OS query" guidance for the syscall itself
// (kill(pid, 0) already is an O(1) per-pid syscall; no OS API here supports
// probing many pids atomically, so batching applies at the loop level).
func (m *Monitor) DetectCrashes(now time.Time) []CrashEvent {
	m.mu.Lock()
	if now.Sub(m.lastLiveness) < LivenessRateLimit {
		m.mu.Unlock()
		return nil
	}
	m.lastLiveness = now
	m.mu.Unlock()

	var events []CrashEvent
	for _, p := range m.reg.List() {
		if !p.State.HasPID() || p.PID <= 0 {
			continue
		}
		if p.State == lifecycle.Stopping {
			// An in-progress stop owns its own reap path; the supervisor
			// loop must not race it by reporting a synthetic crash.
			continue
		}
		if alive, _ := DetectAlive(p.PID, p.Config.Detectors); !alive {
			code, sig := reapExitInfo(p.PID)
			events = append(events, CrashEvent{ID: p.ID, ExitCode: code, ExitSignal: sig})
		}
	}
	return events
}

// DetectAlive reports whether pid is alive, avoiding the zombie false
// positive the teacher's DetectAlive guards against, falling back to
// configured extra detectors when the primary probe is inconclusive.
func DetectAlive(pid int, detectors []registry.DetectorConfig) (bool, string) {
	if isZombie(pid) {
		return false, ""
	}
	if syscall.Kill(pid, 0) == nil {
		return true, "pid"
	}
	for _, d := range detectors {
		if ok := probeDetector(d); ok {
			return true, "detector:" + d.Type
		}
	}
	return false, ""
}

func probeDetector(d registry.DetectorConfig) bool {
	switch d.Type {
	case "pidfile":
		b, err := os.ReadFile(d.Path)
		if err != nil {
			return false
		}
		pid, err := strconv.Atoi(string(bytes.TrimSpace(b)))
		if err != nil {
			return false
		}
		return syscall.Kill(pid, 0) == nil
	default:
		return false
	}
}

// isZombie returns true if /proc/<pid>/status reports a zombie state (Z).
// Non-Linux platforms have no equivalent proc filesystem; a build-tagged
// stub always returns false there.
func isZombie(pid int) bool {
	return isZombieOS(pid)
}

// reapExitInfo is best-effort: the exit code/signal are authoritative only
// when the caller also owns the *os.Process (the Supervisor Loop's own
// wait goroutine); when a crash is discovered by an out-of-band probe the
// fields are left zero and the dispatcher/persistence layers do not rely
// on them beyond logging.
func reapExitInfo(pid int) (code int, signal string) {
	return 0, ""
}

// UpdateAllStats refreshes CPU percent and RSS for every entry with a live
// pid, rate-limited to StatsRateLimit, using gopsutil/v4/process the way
// other pid-stats sampling in the corpus does.
func (m *Monitor) UpdateAllStats(now time.Time) {
	m.mu.Lock()
	if now.Sub(m.lastStatsPass) < StatsRateLimit {
		m.mu.Unlock()
		return
	}
	m.lastStatsPass = now
	m.mu.Unlock()

	for _, p := range m.reg.List() {
		if !p.State.HasPID() || p.PID <= 0 {
			continue
		}
		cpuPct, rss, err := sampleStats(p.PID)
		if err != nil {
			continue
		}
		id := p.ID
		_ = m.reg.WithMut(id, func(mp *registry.ManagedProcess) {
			mp.Stats = registry.Stats{CPUPercent: float32(cpuPct), MemoryRSS: rss, UpdatedAt: now}
		})
		metrics.SetMemoryRSS(p.Name, rss)
		metrics.SetCPUPercent(p.Name, float32(cpuPct))
	}
}

func sampleStats(pid int) (cpuPercent float64, rssBytes uint64, err error) {
	proc, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err = proc.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return cpuPercent, 0, err
	}
	return cpuPercent, memInfo.RSS, nil
}

// CheckLimits compares an entry's last-sampled stats against its
// configured limits, returning which limits (if any) are currently
// exceeded. It does not mutate the registry; the caller (Supervisor Loop)
// is responsible for incrementing violation counters and applying
// limit_action.
func CheckLimits(p registry.ManagedProcess) []ViolationKind {
	var violations []ViolationKind
	if p.Config.MaxMemoryBytes > 0 && p.Stats.MemoryRSS > uint64(p.Config.MaxMemoryBytes) {
		violations = append(violations, ViolationMemory)
	}
	if p.Config.MaxCPUPercent > 0 && float64(p.Stats.CPUPercent) > float64(p.Config.MaxCPUPercent) {
		violations = append(violations, ViolationCPU)
	}
	return violations
}
