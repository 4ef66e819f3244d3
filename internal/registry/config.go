// Package registry holds the in-memory process registry: ManagedProcess
// entries and the ProcessConfig they were spawned from, indexed by id, by
// name, and by OS pid.
package registry

import (
	"strconv"
	"time"
)

// StopSignal is one of the signals the dispatcher may send to request a
// graceful stop. KILL is reachable only through force-stop, never as a
// configured stop_signal.
type StopSignal string

const (
	SignalTERM StopSignal = "TERM"
	SignalINT  StopSignal = "INT"
	SignalQUIT StopSignal = "QUIT"
	SignalHUP  StopSignal = "HUP"
	SignalUSR1 StopSignal = "USR1"
	SignalUSR2 StopSignal = "USR2"
)

// LimitAction describes what happens when a running process is found to
// exceed its configured resource limit.
type LimitAction string

const (
	LimitActionLog     LimitAction = "log"
	LimitActionRestart LimitAction = "restart"
	LimitActionStop    LimitAction = "stop"
)

// DetectorConfig names an extra liveness detector consulted when the
// primary pid-based probe is inconclusive (e.g. a re-attached orphan).
// Mirrors the teacher's detector.Config shape but reports liveness only,
// never application health.
type DetectorConfig struct {
	Type    string `json:"type" toml:"type" mapstructure:"type"`
	Path    string `json:"path" toml:"path" mapstructure:"path"`
	Command string `json:"command" toml:"command" mapstructure:"command"`
}

// LogConfig describes per-process stdout/stderr capture and rotation,
// consumed by internal/logcapture.
type LogConfig struct {
	Dir        string `json:"log_dir" toml:"log_dir" mapstructure:"log_dir"`
	MaxSizeMB  int    `json:"log_max_size_mb" toml:"log_max_size_mb" mapstructure:"log_max_size_mb"`
	MaxBackups int    `json:"log_max_backups" toml:"log_max_backups" mapstructure:"log_max_backups"`
	MaxAgeDays int    `json:"log_max_age_days" toml:"log_max_age_days" mapstructure:"log_max_age_days"`
	Compress   bool   `json:"log_compress" toml:"log_compress" mapstructure:"log_compress"`
}

// ProcessConfig is the immutable declaration a ManagedProcess is created
// from. See spec.md section 3.
type ProcessConfig struct {
	Name       string            `json:"name" toml:"name" mapstructure:"name"`
	Script     string            `json:"script" toml:"script" mapstructure:"script"`
	Args       []string          `json:"args" toml:"args" mapstructure:"args"`
	Cwd        string            `json:"cwd" toml:"cwd" mapstructure:"cwd"`
	Env        map[string]string `json:"env" toml:"env" mapstructure:"env"`
	Instances  int               `json:"instances" toml:"instances" mapstructure:"instances"`

	AutoRestart      bool          `json:"autorestart" toml:"autorestart" mapstructure:"autorestart"`
	MaxRestarts      int           `json:"max_restarts" toml:"max_restarts" mapstructure:"max_restarts"`
	RestartDelaySecs float64       `json:"restart_delay_secs" toml:"restart_delay_secs" mapstructure:"restart_delay_secs"`

	MaxMemoryBytes int64       `json:"max_memory" toml:"max_memory" mapstructure:"max_memory"`
	MaxCPUPercent  int         `json:"max_cpu" toml:"max_cpu" mapstructure:"max_cpu"`
	LimitAction    LimitAction `json:"limit_action" toml:"limit_action" mapstructure:"limit_action"`

	StopSignal      StopSignal `json:"stop_signal" toml:"stop_signal" mapstructure:"stop_signal"`
	StopTimeoutSecs float64    `json:"stop_timeout_secs" toml:"stop_timeout_secs" mapstructure:"stop_timeout_secs"`

	// Priority sets startup ordering for StartFromConfig: lower starts
	// first. Supplemented from the teacher's Spec.Priority field; absent
	// from spec.md's distilled ProcessConfig.
	Priority int `json:"priority" toml:"priority" mapstructure:"priority"`

	// Detectors are consulted by the Monitor as a liveness fallback; see
	// DetectorConfig. Not a custom health-check hook (still a non-goal).
	Detectors []DetectorConfig `json:"detectors" toml:"detectors" mapstructure:"detectors"`

	Log LogConfig `json:"log" toml:"log" mapstructure:"log"`
}

// RestartDelay returns RestartDelaySecs as a time.Duration, defaulting to
// one second when unset or non-positive.
func (c ProcessConfig) RestartDelay() time.Duration {
	if c.RestartDelaySecs <= 0 {
		return time.Second
	}
	return time.Duration(c.RestartDelaySecs * float64(time.Second))
}

// StopTimeout returns StopTimeoutSecs as a time.Duration, defaulting to ten
// seconds when unset or non-positive.
func (c ProcessConfig) StopTimeout() time.Duration {
	if c.StopTimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.StopTimeoutSecs * float64(time.Second))
}

// InstanceName returns the display name for instance i of this config, per
// spec.md section 3's "${base}-${i}" convention. When Instances <= 1 the
// base name is used unadorned.
func (c ProcessConfig) InstanceName(i int) string {
	if c.Instances <= 1 {
		return c.Name
	}
	return c.Name + "-" + strconv.Itoa(i)
}
