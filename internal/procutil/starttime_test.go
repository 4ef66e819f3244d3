package procutil

import (
	"os"
	"testing"
)

func TestStartTimeSelf(t *testing.T) {
	ticks, ok := StartTime(os.Getpid())
	if !ok {
		t.Skip("/proc/<pid>/stat not available on this platform")
	}
	if ticks == 0 {
		t.Fatal("expected a nonzero tick count for a running process")
	}
}

func TestStartTimeUnknownPID(t *testing.T) {
	// pid 1 exists but is very unlikely to be readable by a test process
	// without privilege in most sandboxes; a nonexistent high pid is a
	// more reliable "not found" case across environments.
	if _, ok := StartTime(1 << 30); ok {
		t.Fatal("expected ok=false for a pid that cannot exist")
	}
}
