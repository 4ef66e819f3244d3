package persistence

import (
	"syscall"

	"github.com/loykin/adasa/internal/apperrors"
	"github.com/loykin/adasa/internal/lifecycle"
	"github.com/loykin/adasa/internal/procutil"
	"github.com/loykin/adasa/internal/registry"
)

// Reconcile inserts every entry from snap into reg. For entries that had a
// pid, it probes the OS: if the pid exists and its recorded start time
// matches what procutil.StartTime reports now, the entry is re-attached in
// its prior state; otherwise it is marked Errored with OrphanReason
// apperrors.KindOrphanedAtRestart, per spec.md section 4.9. Entries that
// never held a pid (e.g. Stopped) are restored as-is.
func Reconcile(reg *registry.Registry, snap Snapshot) {
	for _, e := range snap.Entries {
		p := &registry.ManagedProcess{
			ID:             e.ID,
			Name:           e.Name,
			Config:         e.Config,
			State:          e.State,
			PID:            e.PID,
			StartTimeTicks: e.StartTimeTicks,
			RestartCount:   e.RestartCount,
			SpawnedAt:      e.SpawnedAt,
			LastExitAt:     e.LastExitAt,
		}
		if e.State.HasPID() && e.PID > 0 {
			if !pidStillOurs(e.PID, e.StartTimeTicks) {
				p.State = lifecycle.Errored
				p.PID = 0
				p.OrphanReason = string(apperrors.KindOrphanedAtRestart)
			}
		}
		reg.InsertRestored(p)
	}
	reg.RestoreNextID(snap.NextID)
}

// pidStillOurs reports whether pid still refers to the same process that was
// recorded at wantTicks. Exact cross-restart identity is best-effort per
// spec.md section 9 Open Question (b): when wantTicks is zero (it was never
// recorded, e.g. a snapshot written before this field existed, or a
// non-Linux host) this falls back to a liveness-only check; otherwise a
// mismatched start time means the pid was reused by an unrelated process
// and the entry is conservatively treated as "not ours" rather than
// silently adopted.
func pidStillOurs(pid int, wantTicks uint64) bool {
	if err := syscall.Kill(pid, 0); err != nil {
		return false
	}
	gotTicks, ok := procutil.StartTime(pid)
	if !ok {
		return wantTicks == 0
	}
	if wantTicks == 0 {
		return true
	}
	return gotTicks == wantTicks
}
