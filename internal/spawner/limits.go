//go:build linux

package spawner

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// applyMemoryLimit sets RLIMIT_AS on the already-started child identified by
// pid. os/exec exposes no pre-exec hook, so unix.Prlimit against the live
// pid immediately after cmd.Start() is the idiomatic Go approach; the small
// window between fork and this call is the accepted cost, matching
// LimitApplyFailed's non-fatal contract. maxBytes <= 0 means unlimited: no
// syscall is made.
func applyMemoryLimit(pid int, maxBytes int64) error {
	if maxBytes <= 0 {
		return nil
	}
	limit := unix.Rlimit{Cur: uint64(maxBytes), Max: uint64(maxBytes)}
	if err := unix.Prlimit(pid, unix.RLIMIT_AS, &limit, nil); err != nil {
		return fmt.Errorf("prlimit RLIMIT_AS on pid %d: %w", pid, err)
	}
	return nil
}
