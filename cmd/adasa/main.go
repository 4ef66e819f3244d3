// Command adasa is the CLI for the adasa process supervisor: it either
// bootstraps the daemon itself ("adasa daemon start") or talks to an
// already-running one over its Unix socket for every other subcommand.
// Grounded on the teacher's cmd/provisr/main.go (buildRoot wiring a shared
// command struct into one createXCommand per subcommand, flag structs per
// command, MarkFlagRequired+panic at setup time), trimmed to the much
// smaller surface spec.md section 6 names and pointed at pkg/client instead
// of an HTTP API client.
package main

import (
	"fmt"
	"os"

	"github.com/loykin/adasa/internal/apperrors"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "adasa:", err)
		os.Exit(apperrors.ExitCode(err))
	}
}
