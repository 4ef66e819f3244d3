package persistence

import (
	"context"
	"time"

	"github.com/loykin/adasa/internal/registry"
)

// CheckpointInterval is the coarse period at which Run writes a snapshot,
// per spec.md section 4.9 ("persisted at a coarse interval, not on every
// state change").
const CheckpointInterval = 30 * time.Second

// Run periodically writes a snapshot of reg to path until ctx is canceled,
// skipping the write when nothing has changed since the last checkpoint.
// nextID is called on each tick to obtain the registry's current id counter
// (cmd/adasa passes Registry.NextID).
func Run(ctx context.Context, path string, reg *registry.Registry, nextID func() int64) {
	ticker := time.NewTicker(CheckpointInterval)
	defer ticker.Stop()

	var lastDigest string
	for {
		select {
		case <-ctx.Done():
			_ = checkpointOnce(path, reg, nextID(), &lastDigest)
			return
		case <-ticker.C:
			_ = checkpointOnce(path, reg, nextID(), &lastDigest)
		}
	}
}

func checkpointOnce(path string, reg *registry.Registry, nextID int64, lastDigest *string) error {
	snap := FromRegistry(reg, nextID)
	digest := digestOf(snap)
	if digest == *lastDigest {
		return nil
	}
	if err := Save(path, snap); err != nil {
		return err
	}
	*lastDigest = digest
	return nil
}

// digestOf produces a cheap change signal for snap without a full hash
// library: state transitions and restart counts are what matter for
// deciding whether a checkpoint is worth writing.
func digestOf(snap Snapshot) string {
	var b []byte
	for _, e := range snap.Entries {
		b = append(b, e.Name...)
		b = append(b, byte(e.State), byte(e.RestartCount), byte(e.PID), byte(e.PID>>8))
	}
	return string(b)
}
