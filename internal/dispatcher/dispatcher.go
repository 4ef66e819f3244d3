// Package dispatcher implements the Command Dispatcher: it serializes
// client requests against the registry and drives Start/Stop/Restart/
// Delete/List/StartFromConfig/ReloadConfig, per spec.md section 4.7.
// Grounded on the teacher's manager.Manager public API
// (internal/manager/manager.go: Start/Stop/StartN/StopAll/StatusAll/
// StatusMatch) generalized to the spec's id/name/base-N selector syntax
// and to rolling-restart / additive-reload semantics the teacher lacks.
package dispatcher

import (
	"context"
	"log/slog"
	"sort"
	"syscall"
	"time"

	"github.com/loykin/adasa/internal/apperrors"
	"github.com/loykin/adasa/internal/history"
	"github.com/loykin/adasa/internal/lifecycle"
	"github.com/loykin/adasa/internal/metrics"
	"github.com/loykin/adasa/internal/monitor"
	"github.com/loykin/adasa/internal/procutil"
	"github.com/loykin/adasa/internal/registry"
	"github.com/loykin/adasa/internal/spawner"
)

// HealthCheckDelay is the liveness-after-delay wait a rolling restart
// observes before proceeding to the next instance (spec.md section 9,
// Open Question (c): no custom health command, liveness only).
const HealthCheckDelay = 3 * time.Second

// pollInterval governs how often Stop polls liveness while waiting for a
// graceful exit or the deadline.
const pollInterval = 50 * time.Millisecond

// escalationGrace is the ε spec.md's testable property 6 allows beyond
// stop_timeout_secs before a stop is considered to have needed KILL.
const escalationGrace = 500 * time.Millisecond

// Dispatcher holds the registry it mutates on behalf of decoded requests.
type Dispatcher struct {
	reg  *registry.Registry
	log  *slog.Logger
	sink history.Sink
}

// New returns a Dispatcher over reg.
func New(reg *registry.Registry, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{reg: reg, log: log}
}

// SetHistorySink attaches an optional audit-trail sink. A nil sink (the
// default) disables history recording entirely; Send failures are logged
// and otherwise ignored since the sink is never authoritative.
func (d *Dispatcher) SetHistorySink(sink history.Sink) {
	d.sink = sink
}

func (d *Dispatcher) record(evType history.EventType, id int64, name string, pid int, state string, exitCode int, exitSignal string) {
	if d.sink == nil {
		return
	}
	ev := history.Event{
		Type: evType, OccurredAt: time.Now(), ProcessID: id, Name: name,
		PID: pid, State: state, ExitCode: exitCode, ExitSignal: exitSignal,
	}
	go func() {
		if err := d.sink.Send(context.Background(), ev); err != nil {
			d.log.Warn("history sink send failed", "event", evType, "name", name, "error", err)
		}
	}()
}

// StartedInstance is one (id, name) pair produced by Start, alongside the
// error for that instance specifically (nil on success), per spec.md's
// "partial failures do not roll back successful instances" contract.
type StartedInstance struct {
	ID    int64
	Name  string
	Error error
}

// Start creates and spawns one entry per cfg.Instances, returning the
// per-instance outcome. A per-instance NameConflict or spawn failure does
// not prevent the remaining instances from being attempted.
func (d *Dispatcher) Start(cfg registry.ProcessConfig) []StartedInstance {
	n := cfg.Instances
	if n <= 0 {
		n = 1
	}
	out := make([]StartedInstance, 0, n)
	for i := 0; i < n; i++ {
		name := cfg.Name
		if n > 1 {
			name = cfg.InstanceName(i)
		}
		id, err := d.startOne(name, cfg)
		out = append(out, StartedInstance{ID: id, Name: name, Error: err})
	}
	return out
}

func (d *Dispatcher) startOne(name string, cfg registry.ProcessConfig) (int64, error) {
	p, err := d.reg.Create(name, cfg)
	if err != nil {
		return 0, err
	}
	if err := d.spawnAndTrack(p.ID, name, cfg); err != nil {
		_ = d.reg.WithMut(p.ID, func(mp *registry.ManagedProcess) { mp.State = lifecycle.Errored })
		return p.ID, err
	}
	return p.ID, nil
}

func (d *Dispatcher) spawnAndTrack(id int64, name string, cfg registry.ProcessConfig) error {
	res, err := spawner.Spawn(cfg, name)
	if err != nil {
		if res == nil {
			return err
		}
		// spawner.Spawn documents LimitApplyFailed as non-fatal: the child
		// is already running and must still be reaped, not abandoned as an
		// unsupervised zombie-in-waiting.
		if !apperrors.Is(err, apperrors.KindLimitApplyFailed) {
			return err
		}
		d.log.Warn("resource limit could not be applied at spawn, process still running", "name", name, "error", err)
	}
	startTicks, _ := procutil.StartTime(res.PID)
	if err := d.reg.WithMut(id, func(p *registry.ManagedProcess) {
		p.PID = res.PID
		p.State = lifecycle.Running
		p.SpawnedAt = time.Now()
		p.StartTimeTicks = startTicks
	}); err != nil {
		return err
	}
	metrics.IncStart(name)
	metrics.RecordStateTransition(name, lifecycle.Starting.String(), lifecycle.Running.String())
	metrics.SetCurrentState(name, lifecycle.Running.String(), true)
	d.record(history.EventStart, id, name, res.PID, lifecycle.Running.String(), 0, "")
	go spawner.Track(d.reg, id, res)
	return nil
}

// Stop resolves selector to one or more entries and stops each: force
// sends KILL immediately; otherwise the configured stop_signal is sent,
// state becomes Stopping, and a deadline of stop_timeout_secs is armed,
// escalating to KILL on expiry. Returns once every selected entry has been
// reaped or force-killed.
func (d *Dispatcher) Stop(selector string, force bool) error {
	matches := Resolve(d.reg, selector)
	if len(matches) == 0 {
		return apperrors.NotFound(selector)
	}
	for _, m := range matches {
		if err := d.stopOne(m, force); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) stopOne(p registry.ManagedProcess, force bool) error {
	if !lifecycle.CanStop(p.State) {
		return nil
	}
	if !p.State.HasPID() || p.PID <= 0 {
		_ = d.reg.WithMut(p.ID, func(mp *registry.ManagedProcess) { mp.State = lifecycle.Stopped })
		return nil
	}

	if err := d.reg.WithMut(p.ID, func(mp *registry.ManagedProcess) { mp.State = lifecycle.Stopping }); err != nil {
		return err
	}

	if force {
		_ = syscall.Kill(p.PID, syscall.SIGKILL)
		d.waitReaped(p.ID, p.PID, escalationGrace)
		_ = d.reg.WithMut(p.ID, func(mp *registry.ManagedProcess) { mp.State = lifecycle.Stopped })
		d.recordStop(p)
		return nil
	}

	sig := stopSignal(p.Config.StopSignal)
	_ = syscall.Kill(p.PID, sig)
	deadline := p.Config.StopTimeout()
	if d.waitReaped(p.ID, p.PID, deadline) {
		_ = d.reg.WithMut(p.ID, func(mp *registry.ManagedProcess) { mp.State = lifecycle.Stopped })
		d.recordStop(p)
		return nil
	}

	d.log.Warn("stop deadline elapsed, escalating to KILL", "id", p.ID, "name", p.Name)
	_ = syscall.Kill(p.PID, syscall.SIGKILL)
	d.waitReaped(p.ID, p.PID, escalationGrace)
	_ = d.reg.WithMut(p.ID, func(mp *registry.ManagedProcess) { mp.State = lifecycle.Stopped })
	d.recordStop(p)
	return nil
}

func (d *Dispatcher) recordStop(p registry.ManagedProcess) {
	metrics.IncStop(p.Name)
	metrics.SetCurrentState(p.Name, lifecycle.Running.String(), false)
	metrics.SetCurrentState(p.Name, lifecycle.Stopped.String(), true)
	d.record(history.EventStop, p.ID, p.Name, p.PID, lifecycle.Stopped.String(), p.ExitCode, p.ExitSignal)
}

// waitReaped polls liveness until pid is no longer alive or timeout
// elapses, returning whether it exited within timeout.
func (d *Dispatcher) waitReaped(id int64, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		p := d.reg.LookupByID(id)
		detectors := []registry.DetectorConfig(nil)
		if p != nil {
			detectors = p.Config.Detectors
		}
		if alive, _ := monitor.DetectAlive(pid, detectors); !alive {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

func stopSignal(s registry.StopSignal) syscall.Signal {
	switch s {
	case registry.SignalINT:
		return syscall.SIGINT
	case registry.SignalQUIT:
		return syscall.SIGQUIT
	case registry.SignalHUP:
		return syscall.SIGHUP
	case registry.SignalUSR1:
		return syscall.SIGUSR1
	case registry.SignalUSR2:
		return syscall.SIGUSR2
	default:
		return syscall.SIGTERM
	}
}

// Restart stops then re-starts each entry matched by selector, preserving
// its id. When rolling is true, instances are restarted one at a time,
// waiting HealthCheckDelay after each start before proceeding; if the
// replacement is not Running after the delay, the rolling restart aborts
// and earlier instances remain restarted.
func (d *Dispatcher) Restart(selector string, rolling bool) error {
	matches := Resolve(d.reg, selector)
	if len(matches) == 0 {
		return apperrors.NotFound(selector)
	}
	if !rolling {
		for _, m := range matches {
			if err := d.restartOne(m); err != nil {
				return err
			}
		}
		return nil
	}
	for _, m := range matches {
		if err := d.restartOne(m); err != nil {
			return err
		}
		time.Sleep(HealthCheckDelay)
		entry := d.reg.LookupByID(m.ID)
		if entry == nil || entry.State != lifecycle.Running {
			return apperrors.New(apperrors.KindSpawnFailed, "rolling restart aborted: replacement not Running after health_check_delay")
		}
	}
	return nil
}

func (d *Dispatcher) restartOne(p registry.ManagedProcess) error {
	if err := d.stopOne(p, false); err != nil {
		return err
	}
	return d.spawnAndTrack(p.ID, p.Name, p.Config)
}

// StopEntry runs the same signal-poll-escalate-reap sequence as Stop, for a
// single already-resolved entry. Exported for internal/supervisor's
// limit_action=stop path, which reaches an entry directly off a tick pass
// rather than through a selector.
func (d *Dispatcher) StopEntry(p registry.ManagedProcess, force bool) error {
	return d.stopOne(p, force)
}

// RestartEntry runs the same stop-then-spawn sequence as Restart (non-rolling,
// single entry), for internal/supervisor's limit_action=restart path.
func (d *Dispatcher) RestartEntry(p registry.ManagedProcess) error {
	return d.restartOne(p)
}

// Delete stops (graceful then force) every entry matched by selector and
// removes it from the registry once reaped.
func (d *Dispatcher) Delete(selector string) error {
	matches := Resolve(d.reg, selector)
	if len(matches) == 0 {
		return apperrors.NotFound(selector)
	}
	for _, m := range matches {
		if !lifecycle.CanDelete(m.State) {
			continue
		}
		if err := d.stopOne(m, false); err != nil {
			return err
		}
		_ = d.reg.WithMut(m.ID, func(mp *registry.ManagedProcess) { mp.State = lifecycle.Deleted })
		if err := d.reg.Remove(m.ID); err != nil {
			return err
		}
	}
	return nil
}

// List returns a snapshot of every non-Deleted entry.
func (d *Dispatcher) List() []registry.ManagedProcess {
	return d.reg.List()
}

// StartFromConfig starts one entry per cfg, sorted by Priority ascending
// (lower starts first, per the supplemented ProcessConfig.Priority field).
// A NameConflict on one entry does not block the rest.
func (d *Dispatcher) StartFromConfig(cfgs []registry.ProcessConfig) []StartedInstance {
	sorted := make([]registry.ProcessConfig, len(cfgs))
	copy(sorted, cfgs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var out []StartedInstance
	for _, cfg := range sorted {
		out = append(out, d.Start(cfg)...)
	}
	return out
}

// ReloadResult reports what ReloadConfig did.
type ReloadResult struct {
	Added    []string
	Existing []string
}

// ReloadConfig is additive: it starts any entry from cfgs whose name is not
// currently in the registry and leaves existing entries untouched. It
// never stops or restarts anything, per spec.md section 4.7.
func (d *Dispatcher) ReloadConfig(cfgs []registry.ProcessConfig) ReloadResult {
	var result ReloadResult
	for _, cfg := range cfgs {
		if d.reg.LookupByName(cfg.Name) != nil {
			result.Existing = append(result.Existing, cfg.Name)
			continue
		}
		for _, inst := range d.Start(cfg) {
			if apperrors.Is(inst.Error, apperrors.KindNameConflict) {
				result.Existing = append(result.Existing, inst.Name)
				continue
			}
			result.Added = append(result.Added, inst.Name)
		}
	}
	return result
}
