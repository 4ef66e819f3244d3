// Package procutil holds small OS-process introspection helpers shared by
// the parts of adasa that need to tell a live pid from a reused one:
// internal/supervisor and internal/dispatcher record a process's start time
// right after spawning it; internal/persistence compares that recorded value
// against the live process at restart to confirm a restored pid is still
// the same process rather than an unrelated one the OS has since reused.
package procutil

import (
	"os"
	"strconv"
	"strings"
)

// StartTime reads field 22 (starttime, in clock ticks since boot) from
// /proc/<pid>/stat. It returns ok=false when the file cannot be read or
// parsed, e.g. on a non-Linux platform or a pid that has already exited.
func StartTime(pid int) (ticks uint64, ok bool) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, false
	}
	// Field 2 (comm) may contain spaces and is parenthesized; start
	// scanning fields after its closing paren.
	s := string(data)
	closeParen := strings.LastIndexByte(s, ')')
	if closeParen < 0 {
		return 0, false
	}
	fields := strings.Fields(s[closeParen+1:])
	const startTimeFieldAfterComm = 19 // starttime is field 22 overall; fields here start at field 3 (state)
	if len(fields) <= startTimeFieldAfterComm {
		return 0, false
	}
	v, err := strconv.ParseUint(fields[startTimeFieldAfterComm], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
