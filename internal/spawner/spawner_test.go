//go:build !windows

package spawner

import (
	"syscall"
	"testing"

	"github.com/loykin/adasa/internal/registry"
)

func TestSpawnSleepSucceeds(t *testing.T) {
	res, err := Spawn(registry.ProcessConfig{Script: "/bin/sleep", Args: []string{"30"}}, "sleeper")
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	defer func() {
		_ = res.Cmd.Process.Kill()
		_, _ = res.Cmd.Process.Wait()
		res.Endpoints.Close()
	}()
	if res.PID <= 0 {
		t.Fatalf("expected a positive pid, got %d", res.PID)
	}
	if res.Cmd.SysProcAttr == nil || !res.Cmd.SysProcAttr.Setpgid {
		t.Fatalf("expected Setpgid to be set")
	}
}

func TestSpawnFalseExitsNonZero(t *testing.T) {
	res, err := Spawn(registry.ProcessConfig{Script: "/bin/false"}, "faller")
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	defer res.Endpoints.Close()
	err = res.Cmd.Wait()
	if err == nil {
		t.Fatalf("expected /bin/false to exit non-zero")
	}
	if status, ok := res.Cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
		if status.ExitStatus() == 0 {
			t.Fatalf("expected non-zero exit status")
		}
	}
}

func TestSpawnMissingExecutable(t *testing.T) {
	_, err := Spawn(registry.ProcessConfig{Script: "/no/such/binary-adasa-test"}, "missing")
	if err == nil {
		t.Fatalf("expected ExecutableNotFound error")
	}
}

func TestSpawnMissingCwd(t *testing.T) {
	_, err := Spawn(registry.ProcessConfig{Script: "/bin/sleep", Args: []string{"1"}, Cwd: "/no/such/dir-adasa-test"}, "badcwd")
	if err == nil {
		t.Fatalf("expected CwdMissing error")
	}
}
