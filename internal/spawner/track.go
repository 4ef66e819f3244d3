package spawner

import (
	"os/exec"
	"syscall"

	"github.com/loykin/adasa/internal/registry"
)

// Track waits for a spawned child to exit, closes its log endpoints, and
// records the exit cause on the registry entry identified by id, provided
// that entry still holds the pid res was started with (a later respawn may
// already have replaced it). Every caller that obtains a *Result from
// Spawn must call Track exactly once for it, or the child remains a zombie.
func Track(reg *registry.Registry, id int64, res *Result) {
	waitErr := res.Cmd.Wait()
	res.Endpoints.Close()

	code, signal := ExitCause(res.Cmd, waitErr)
	_ = reg.WithMut(id, func(p *registry.ManagedProcess) {
		if p.PID != res.PID {
			return
		}
		p.ExitCode = code
		p.ExitSignal = signal
	})
}

// ExitCause extracts an exit code and signal name from a finished cmd,
// grounded on the teacher's syscall.WaitStatus inspection idiom used
// throughout process_test_unix.go.
func ExitCause(cmd *exec.Cmd, waitErr error) (code int, signal string) {
	if cmd.ProcessState == nil {
		return 0, ""
	}
	status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		if waitErr != nil {
			return 1, ""
		}
		return 0, ""
	}
	if status.Signaled() {
		return -1, status.Signal().String()
	}
	return status.ExitStatus(), ""
}
