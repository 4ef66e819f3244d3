//go:build linux

package monitor

import (
	"bytes"
	"os"
	"strconv"
)

func isZombieOS(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
