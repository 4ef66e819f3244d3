// Package spawner turns a registry.ProcessConfig instance into a running OS
// process: it resolves the executable and working directory, builds the
// exec.Cmd, wires stdio to internal/logcapture, execs the child, and
// applies best-effort resource limits once it is running. Grounded on the
// teacher's process.Spec.BuildCommand / process.Process.ConfigureCmd
// (internal/process/spec.go, internal/process/process.go).
package spawner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/loykin/adasa/internal/apperrors"
	"github.com/loykin/adasa/internal/logcapture"
	"github.com/loykin/adasa/internal/registry"
)

// Result is what a successful Spawn returns: the live pid, the log
// endpoints the caller must Close once the child is reaped, and the
// *exec.Cmd itself so the caller can Wait on it.
type Result struct {
	PID       int
	Cmd       *exec.Cmd
	Endpoints *logcapture.Endpoints
}

// Spawn resolves cfg's script and cwd, builds argv/env, execs the child
// under its own process group, and wires its stdio through logcapture.
// instanceName is the already-suffixed display name (registry.ProcessConfig.InstanceName).
func Spawn(cfg registry.ProcessConfig, instanceName string) (*Result, error) {
	scriptPath, err := resolveExecutable(cfg.Script)
	if err != nil {
		return nil, err
	}
	if cfg.Cwd != "" {
		info, statErr := os.Stat(cfg.Cwd)
		if statErr != nil || !info.IsDir() {
			return nil, apperrors.New(apperrors.KindCwdMissing, fmt.Sprintf("cwd %q does not exist", cfg.Cwd))
		}
	}

	ep, err := logcapture.Open(cfg.Log, instanceName)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSpawnFailed, "open log endpoints", err)
	}

	// #nosec G204 -- script/args come from an operator-authored ProcessConfig, not untrusted input.
	cmd := exec.Command(scriptPath, cfg.Args...)
	cmd.Env = mergedEnv(cfg.Env)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = ep.Stdout
	cmd.Stderr = ep.Stderr

	if err := cmd.Start(); err != nil {
		ep.Close()
		return nil, apperrors.Wrap(apperrors.KindSpawnFailed, fmt.Sprintf("start %q", scriptPath), err)
	}

	pid := cmd.Process.Pid
	if limitErr := applyMemoryLimit(pid, cfg.MaxMemoryBytes); limitErr != nil {
		return &Result{PID: pid, Cmd: cmd, Endpoints: ep}, apperrors.Wrap(apperrors.KindLimitApplyFailed, "memory", limitErr)
	}
	if limitErr := applyCPULimit(instanceName, pid, cfg.MaxCPUPercent); limitErr != nil {
		return &Result{PID: pid, Cmd: cmd, Endpoints: ep}, apperrors.Wrap(apperrors.KindLimitApplyFailed, "cpu", limitErr)
	}
	return &Result{PID: pid, Cmd: cmd, Endpoints: ep}, nil
}

// resolveExecutable looks up script on PATH when it has no path separator,
// otherwise requires it to exist as given.
func resolveExecutable(script string) (string, error) {
	if script == "" {
		return "", apperrors.New(apperrors.KindExecutableNotFound, "script is empty")
	}
	if filepath.Base(script) == script {
		full, err := exec.LookPath(script)
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindExecutableNotFound, script, err)
		}
		return full, nil
	}
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return "", apperrors.New(apperrors.KindExecutableNotFound, script)
	}
	return script, nil
}

// mergedEnv layers extra on top of the daemon's own environment, following
// the teacher's ConfigureCmd convention of only overriding cmd.Env when
// extra values are present.
func mergedEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return os.Environ()
	}
	base := os.Environ()
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	return out
}
