//go:build !linux

package spawner

import "fmt"

// applyCPULimit is unsupported outside Linux (cgroup v2 is Linux-specific).
func applyCPULimit(name string, pid int, pct int) error {
	if pct <= 0 {
		return nil
	}
	return fmt.Errorf("cpu limits require Linux cgroup v2")
}
