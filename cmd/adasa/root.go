package main

import (
	"github.com/spf13/cobra"

	"github.com/loykin/adasa/internal/paths"
	"github.com/loykin/adasa/pkg/client"
)

// globalFlags holds the persistent flags every subcommand sees, per the
// teacher's GlobalFlags pattern.
type globalFlags struct {
	Home string
}

// command bundles the pieces every non-daemon subcommand needs: a lazily
// dialed client and the resolved filesystem layout it dials against.
// Mirrors the teacher's command{mgr} wrapper, generalized from an embedded
// manager to an embedded client since adasa's CLI never touches the
// registry directly.
type command struct {
	flags *globalFlags
}

func (c *command) layout() paths.Layout {
	return paths.Resolve(c.flags.Home)
}

func (c *command) client() *client.Client {
	return client.New(c.layout().Socket)
}

// buildRoot constructs the full adasa command tree.
func buildRoot() *cobra.Command {
	flags := &globalFlags{}
	cmd := &command{flags: flags}

	root := &cobra.Command{
		Use:           "adasa",
		Short:         "A lightweight local process supervisor",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&flags.Home, "home", "", "daemon home directory (default: $ADASA_HOME or ~/.adasa)")

	root.AddCommand(
		newDaemonCommand(cmd),
		newStartCommand(cmd),
		newStopCommand(cmd),
		newRestartCommand(cmd),
		newDeleteCommand(cmd),
		newListCommand(cmd),
		newStatusCommand(cmd),
		newLogsCommand(cmd),
		newReloadCommand(cmd),
	)
	return root
}
