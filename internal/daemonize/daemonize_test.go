//go:build !windows

package daemonize

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndRemovePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adasa.pid")
	if err := WritePIDFile(path, 4242); err != nil {
		t.Fatalf("WritePIDFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "4242" {
		t.Fatalf("expected pid file to contain 4242, got %q", data)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("RemovePIDFile failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected pid file to be removed")
	}
}

func TestRemovePIDFileMissingIsNotError(t *testing.T) {
	if err := RemovePIDFile(filepath.Join(t.TempDir(), "missing.pid")); err != nil {
		t.Fatalf("expected no error removing a missing pid file, got %v", err)
	}
}

func TestAlreadyRunningFalseForStalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adasa.pid")
	// pid 1 always exists on a real system (init/systemd); use a pid that is
	// vanishingly unlikely to be alive instead.
	if err := WritePIDFile(path, 999999); err != nil {
		t.Fatal(err)
	}
	if _, running := AlreadyRunning(path); running {
		t.Fatal("expected pid 999999 to be reported as not running")
	}
}

func TestAlreadyRunningTrueForOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adasa.pid")
	if err := WritePIDFile(path, os.Getpid()); err != nil {
		t.Fatal(err)
	}
	pid, running := AlreadyRunning(path)
	if !running || pid != os.Getpid() {
		t.Fatalf("expected own pid %d to be reported running, got pid=%d running=%v", os.Getpid(), pid, running)
	}
}

func TestAlreadyRunningFalseForMissingFile(t *testing.T) {
	if _, running := AlreadyRunning(filepath.Join(t.TempDir(), "missing.pid")); running {
		t.Fatal("expected missing pid file to report not running")
	}
}
