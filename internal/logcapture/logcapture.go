// Package logcapture wires a managed process's stdout/stderr to rotating
// log files, grounded on the teacher's internal/logger package.
package logcapture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/loykin/adasa/internal/registry"
)

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
	defaultMaxAgeDays = 7
)

// Endpoints holds the writers exec.Cmd.Stdout/Stderr should be set to, and
// the underlying closers the Spawner must close once the child exits.
type Endpoints struct {
	Stdout io.Writer
	Stderr io.Writer

	stdoutCloser io.Closer
	stderrCloser io.Closer
}

// Close releases any file handles opened for this endpoint pair. Safe to
// call multiple times.
func (e *Endpoints) Close() {
	if e.stdoutCloser != nil {
		_ = e.stdoutCloser.Close()
		e.stdoutCloser = nil
	}
	if e.stderrCloser != nil {
		_ = e.stderrCloser.Close()
		e.stderrCloser = nil
	}
}

// Open resolves cfg into a pair of writers for name, creating the log
// directory if configured and falling back to /dev/null when no
// destination is set at all. name may carry the "${base}-${i}" instance
// suffix; callers pass registry.ProcessConfig.InstanceName's result.
func Open(cfg registry.LogConfig, name string) (*Endpoints, error) {
	ep := &Endpoints{}

	if cfg.Dir == "" {
		null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("logcapture: open devnull: %w", err)
		}
		ep.Stdout, ep.Stderr = null, null
		ep.stdoutCloser = null
		return ep, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("logcapture: create log dir %s: %w", cfg.Dir, err)
	}

	out := &lj.Logger{
		Filename:   filepath.Join(cfg.Dir, fmt.Sprintf("%s.out.log", name)),
		MaxSize:    valOr(cfg.MaxSizeMB, defaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, defaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, defaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
	errW := &lj.Logger{
		Filename:   filepath.Join(cfg.Dir, fmt.Sprintf("%s.err.log", name)),
		MaxSize:    valOr(cfg.MaxSizeMB, defaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, defaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, defaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
	ep.Stdout, ep.Stderr = out, errW
	ep.stdoutCloser, ep.stderrCloser = out, errW
	return ep, nil
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
