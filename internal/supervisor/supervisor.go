// Package supervisor runs the single periodic tick that drives crash
// detection, backoff-scheduled restarts, limit checks, and stats refresh
// over the whole registry. Grounded on the teacher's manager.supervisor.Run
// ticker loop (internal/manager/supervisor.go), generalized from one
// goroutine per handler to a single loop over internal/registry, matching
// spec.md section 5's "one dedicated task for the Supervisor Loop".
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/adasa/internal/apperrors"
	"github.com/loykin/adasa/internal/dispatcher"
	"github.com/loykin/adasa/internal/history"
	"github.com/loykin/adasa/internal/lifecycle"
	"github.com/loykin/adasa/internal/metrics"
	"github.com/loykin/adasa/internal/monitor"
	"github.com/loykin/adasa/internal/procutil"
	"github.com/loykin/adasa/internal/registry"
	"github.com/loykin/adasa/internal/spawner"
)

// TickInterval is the crash-detection cadence spec.md section 4.6 mandates.
const TickInterval = 500 * time.Millisecond

// statsEvery is how many ticks elapse between stats/limit-check passes,
// yielding the 2s cadence spec.md describes on top of the 500ms tick.
const statsEvery = 4

// Loop owns the ticker and drives one pass of the supervisor algorithm per
// fire. It uses a "skip missed ticks" policy: time.Ticker already drops
// ticks its receiver failed to consume promptly, which is the
// correctness-preserving behavior spec.md section 4.6 asks for since every
// tick body is idempotent.
type Loop struct {
	reg  *registry.Registry
	mon  *monitor.Monitor
	disp *dispatcher.Dispatcher
	log  *slog.Logger
	sink history.Sink

	tickCount int
}

// New returns a Loop over reg, sampling liveness/stats through mon and
// carrying out limit_action=stop/restart via disp's stop/restart sequence.
func New(reg *registry.Registry, mon *monitor.Monitor, disp *dispatcher.Dispatcher, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{reg: reg, mon: mon, disp: disp, log: log}
}

// SetHistorySink attaches an optional audit-trail sink recording crash and
// restart events. A nil sink (the default) disables history recording.
func (l *Loop) SetHistorySink(sink history.Sink) {
	l.sink = sink
}

func (l *Loop) record(evType history.EventType, id int64, name string, pid int, state string, exitCode int, exitSignal string) {
	if l.sink == nil {
		return
	}
	ev := history.Event{
		Type: evType, OccurredAt: time.Now(), ProcessID: id, Name: name,
		PID: pid, State: state, ExitCode: exitCode, ExitSignal: exitSignal,
	}
	go func() {
		if err := l.sink.Send(context.Background(), ev); err != nil {
			l.log.Warn("history sink send failed", "event", evType, "name", name, "error", err)
		}
	}()
}

// Run blocks, ticking until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.tick(now)
		}
	}
}

func (l *Loop) tick(now time.Time) {
	for _, ev := range l.mon.DetectCrashes(now) {
		l.handleCrash(ev.ID, ev.ExitCode, ev.ExitSignal, now)
	}
	l.respawnDue(now)

	l.tickCount++
	if l.tickCount%statsEvery == 0 {
		l.mon.UpdateAllStats(now)
		l.checkLimits(now)
	}
}

// handleCrash applies spec.md section 4.3/4.4: push a restart timestamp,
// check the quota, and either mark Errored or schedule a backoff-delayed
// respawn.
func (l *Loop) handleCrash(id int64, exitCode int, exitSignal string, now time.Time) {
	p := l.reg.LookupByID(id)
	if p == nil || p.State != lifecycle.Running {
		return
	}
	cfg := p.Config
	metrics.IncCrash(p.Name)
	l.record(history.EventCrash, id, p.Name, p.PID, "crashed", exitCode, exitSignal)
	if !cfg.AutoRestart {
		_ = l.reg.WithMut(id, func(mp *registry.ManagedProcess) {
			mp.State = lifecycle.Errored
			mp.ExitCode = exitCode
			mp.ExitSignal = exitSignal
			mp.LastExitAt = now
		})
		return
	}

	windowCount, err := l.reg.PushRestart(id, now)
	if err != nil {
		return
	}
	if lifecycle.QuotaExceeded(windowCount, cfg.MaxRestarts) {
		_ = l.reg.WithMut(id, func(mp *registry.ManagedProcess) {
			mp.State = lifecycle.Errored
			mp.ExitCode = exitCode
			mp.ExitSignal = exitSignal
			mp.LastExitAt = now
			mp.OrphanReason = ""
		})
		l.log.Warn("restart quota exceeded", "id", id, "name", p.Name, "window", windowCount)
		return
	}

	var backoff time.Duration
	_ = l.reg.WithMut(id, func(mp *registry.ManagedProcess) {
		mp.ConsecutiveFailures++
		backoff = lifecycle.NextBackoff(cfg.RestartDelay(), mp.ConsecutiveFailures-1)
		mp.State = lifecycle.Restarting
		mp.ExitCode = exitCode
		mp.ExitSignal = exitSignal
		mp.LastExitAt = now
		mp.BackoffUntil = now.Add(backoff)
	})
	metrics.ObserveRestartBackoff(p.Name, backoff.Seconds())
}

// respawnDue re-spawns every entry in Restarting whose backoff has
// elapsed, via the Spawner.
func (l *Loop) respawnDue(now time.Time) {
	for _, p := range l.reg.List() {
		if p.State != lifecycle.Restarting {
			continue
		}
		if p.BackoffUntil.After(now) {
			continue
		}
		l.respawn(p.ID, p.Name, p.Config)
	}
}

func (l *Loop) respawn(id int64, name string, cfg registry.ProcessConfig) {
	_ = l.reg.WithMut(id, func(mp *registry.ManagedProcess) {
		mp.State = lifecycle.Starting
	})
	res, err := spawner.Spawn(cfg, name)
	if err != nil {
		if res == nil {
			l.log.Error("respawn failed", "id", id, "name", name, "err", err)
			_ = l.reg.WithMut(id, func(mp *registry.ManagedProcess) {
				mp.State = lifecycle.Errored
			})
			return
		}
		if !apperrors.Is(err, apperrors.KindLimitApplyFailed) {
			l.log.Error("respawn failed", "id", id, "name", name, "err", err)
			_ = l.reg.WithMut(id, func(mp *registry.ManagedProcess) {
				mp.State = lifecycle.Errored
			})
			return
		}
		l.log.Warn("resource limit could not be applied at respawn, process still running", "id", id, "name", name, "error", err)
	}
	startTicks, _ := procutil.StartTime(res.PID)
	_ = l.reg.WithMut(id, func(mp *registry.ManagedProcess) {
		mp.PID = res.PID
		mp.State = lifecycle.Running
		mp.SpawnedAt = time.Now()
		mp.StartTimeTicks = startTicks
	})
	metrics.IncRestart(name)
	metrics.RecordStateTransition(name, lifecycle.Restarting.String(), lifecycle.Running.String())
	l.record(history.EventRestart, id, name, res.PID, lifecycle.Running.String(), 0, "")
	go spawner.Track(l.reg, id, res)
}

func (l *Loop) checkLimits(now time.Time) {
	for _, p := range l.reg.List() {
		if p.State != lifecycle.Running {
			continue
		}
		violations := monitor.CheckLimits(p)
		if len(violations) == 0 {
			continue
		}
		id := p.ID
		_ = l.reg.WithMut(id, func(mp *registry.ManagedProcess) {
			for _, v := range violations {
				switch v {
				case monitor.ViolationMemory:
					mp.Violations.MemoryCount++
				case monitor.ViolationCPU:
					mp.Violations.CPUCount++
				}
			}
		})
		for _, v := range violations {
			metrics.IncLimitViolation(p.Name, string(v))
		}
		l.applyLimitAction(p, violations, now)
	}
}

// applyLimitAction carries out spec.md section 4.6 step 3 for a violating
// entry. Stop and restart both go through the dispatcher's stop sequence
// (signal, poll, escalate to KILL, reap) rather than only flipping the
// entry to Stopping, which would otherwise leave it stuck there forever:
// monitor.DetectCrashes deliberately skips Stopping entries so it doesn't
// race an in-progress stop. Both run in a background goroutine so a slow
// stop_timeout_secs doesn't stall the tick loop for every other entry.
func (l *Loop) applyLimitAction(p registry.ManagedProcess, violations []monitor.ViolationKind, now time.Time) {
	switch p.Config.LimitAction {
	case registry.LimitActionLog, "":
		l.log.Warn("resource limit exceeded", "id", p.ID, "name", p.Name, "violations", violations)
	case registry.LimitActionStop:
		l.log.Warn("resource limit exceeded, stopping", "id", p.ID, "name", p.Name, "violations", violations)
		go func() {
			if err := l.disp.StopEntry(p, false); err != nil {
				l.log.Error("limit-triggered stop failed", "id", p.ID, "name", p.Name, "error", err)
			}
		}()
	case registry.LimitActionRestart:
		l.log.Warn("resource limit exceeded, restarting", "id", p.ID, "name", p.Name, "violations", violations)
		go func() {
			if err := l.disp.RestartEntry(p); err != nil {
				l.log.Error("limit-triggered restart failed", "id", p.ID, "name", p.Name, "error", err)
			}
		}()
	}
}
