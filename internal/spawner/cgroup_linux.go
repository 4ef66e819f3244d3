//go:build linux

package spawner

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// cgroupRoot is the cgroup v2 tree adasa attaches limited children under.
const cgroupRoot = "/sys/fs/cgroup/adasa"

// cpuPeriodMicros is the cpu.max period; a quota of pct percent of one core
// is expressed as "<period*pct/100> <period>" per spec.md section 4.2.
const cpuPeriodMicros = 100000

// applyCPULimit attaches pid to a per-process cgroup and writes cpu.max to
// cap it at pct percent of one core. pct <= 0 means unlimited: no cgroup is
// created. Absence of a cgroup v2 mount is reported as an error for the
// caller to wrap as a non-fatal LimitApplyFailed{cpu}, per spec.md section
// 4.2 and design note in section 9 ("never refuse to spawn").
func applyCPULimit(name string, pid int, pct int) error {
	if pct <= 0 {
		return nil
	}
	if _, err := os.Stat(cgroupRoot); err != nil {
		if mkErr := os.MkdirAll(cgroupRoot, 0o755); mkErr != nil {
			return fmt.Errorf("cgroup v2 unavailable at %s: %w", cgroupRoot, err)
		}
	}
	dir := filepath.Join(cgroupRoot, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cgroup dir %s: %w", dir, err)
	}
	quota := cpuPeriodMicros * pct / 100
	cpuMax := strconv.Itoa(quota) + " " + strconv.Itoa(cpuPeriodMicros)
	if err := os.WriteFile(filepath.Join(dir, "cpu.max"), []byte(cpuMax), 0o644); err != nil {
		return fmt.Errorf("write cpu.max in %s: %w", dir, err)
	}
	procsFile := filepath.Join(dir, "cgroup.procs")
	if err := os.WriteFile(procsFile, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("attach pid %d to %s: %w", pid, procsFile, err)
	}
	return nil
}
