// Package paths resolves the daemon's filesystem layout: pid file, IPC
// socket, state snapshot, and log directory, all rooted at a single home
// directory. Grounded on the teacher's pid_dir resolution in
// cmd/provisr/main.go (a single configured directory every other path is
// derived from), generalized to spec.md section 6's fixed-name layout
// under ~/.adasa, overridable via ADASA_HOME or --home.
package paths

import (
	"os"
	"path/filepath"
)

// DefaultHome returns ~/.adasa, or ./.adasa if the home directory cannot be
// determined.
func DefaultHome() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".adasa")
	}
	return ".adasa"
}

// Layout is every path the daemon and CLI need, all derived from one home
// directory.
type Layout struct {
	Home     string
	PIDFile  string
	Socket   string
	State    string
	LogDir   string
}

// Resolve builds a Layout rooted at home. An empty home falls back to
// ADASA_HOME, then DefaultHome.
func Resolve(home string) Layout {
	if home == "" {
		home = os.Getenv("ADASA_HOME")
	}
	if home == "" {
		home = DefaultHome()
	}
	return Layout{
		Home:    home,
		PIDFile: filepath.Join(home, "adasa.pid"),
		Socket:  filepath.Join(home, "adasa.sock"),
		State:   filepath.Join(home, "state.json"),
		LogDir:  filepath.Join(home, "logs"),
	}
}

// EnsureHome creates the home directory (and log directory) if missing,
// with permissions tight enough for the 0600 pid/socket/state files spec.md
// section 6 calls for to live alongside.
func (l Layout) EnsureHome() error {
	if err := os.MkdirAll(l.Home, 0o700); err != nil {
		return err
	}
	return os.MkdirAll(l.LogDir, 0o700)
}
