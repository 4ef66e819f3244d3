package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/adasa/internal/apperrors"
	"github.com/loykin/adasa/internal/config"
	"github.com/loykin/adasa/internal/registry"
	"github.com/loykin/adasa/pkg/client"
)

// startFlags mirrors spec.md section 6's "start" surface: a script path
// (positional) or a declarative --config file, plus the per-process
// overrides a one-off invocation commonly needs. Grounded on the teacher's
// ProcessFlags/RegisterFlags split, collapsed into one struct since adasa's
// start command covers both the ad hoc and config-file cases itself.
type startFlags struct {
	ConfigPath string
	Name       string
	Instances  int
	Cwd        string
	Env        []string
}

func newStartCommand(c *command) *cobra.Command {
	flags := &startFlags{}
	cmd := &cobra.Command{
		Use:   "start [script]",
		Short: "Start a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(c, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.ConfigPath, "config", "", "TOML/JSON file declaring one or more processes")
	cmd.Flags().StringVar(&flags.Name, "name", "", "process name (required unless --config is used)")
	cmd.Flags().IntVar(&flags.Instances, "instances", 1, "number of instances to start")
	cmd.Flags().StringVar(&flags.Cwd, "cwd", "", "working directory for the process")
	cmd.Flags().StringArrayVar(&flags.Env, "env", nil, "environment variable in KEY=VALUE form (repeatable)")
	return cmd
}

func runStart(c *command, flags *startFlags, args []string) error {
	if flags.ConfigPath != "" {
		cfgs, err := config.Load(flags.ConfigPath)
		if err != nil {
			return apperrors.Wrap(apperrors.KindValidationFailed, "load config", err)
		}
		results, err := c.client().StartFromConfig(cfgs)
		if err != nil {
			return err
		}
		return printStarted(results)
	}

	if len(args) == 0 {
		return apperrors.New(apperrors.KindValidationFailed, "a script path or --config is required")
	}
	if flags.Name == "" {
		return apperrors.New(apperrors.KindValidationFailed, "--name is required when starting from a script")
	}

	env, err := parseEnv(flags.Env)
	if err != nil {
		return err
	}
	cfg := registry.ProcessConfig{
		Name:      flags.Name,
		Script:    args[0],
		Args:      args[1:],
		Cwd:       flags.Cwd,
		Env:       env,
		Instances: flags.Instances,
	}
	results, err := c.client().Start(cfg)
	if err != nil {
		return err
	}
	return printStarted(results)
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, apperrors.ValidationFailed("env", fmt.Sprintf("%q is not in KEY=VALUE form", p))
		}
		env[k] = v
	}
	return env, nil
}

func printStarted(results []client.StartedInstance) error {
	var firstErr error
	for _, r := range results {
		if r.Error != nil {
			fmt.Printf("%s: failed to start: %v\n", r.Name, r.Error)
			if firstErr == nil {
				firstErr = r.Error
			}
			continue
		}
		fmt.Printf("%s: started (id %d)\n", r.Name, r.ID)
	}
	return firstErr
}

func newStopCommand(c *command) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "stop <selector>",
		Short: "Stop one or more processes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client().Stop(args[0], force); err != nil {
				return err
			}
			fmt.Printf("%s: stopped\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "send KILL immediately instead of the configured stop signal")
	return cmd
}

func newRestartCommand(c *command) *cobra.Command {
	var rolling bool
	cmd := &cobra.Command{
		Use:   "restart <selector>",
		Short: "Restart one or more processes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client().Restart(args[0], rolling); err != nil {
				return err
			}
			fmt.Printf("%s: restarted\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&rolling, "rolling", false, "restart multi-instance groups one instance at a time")
	return cmd
}

func newDeleteCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <selector>",
		Short: "Stop and remove one or more processes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client().Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s: deleted\n", args[0])
			return nil
		},
	}
}

func newListCommand(c *command) *cobra.Command {
	var detailed bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every managed process",
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := c.client().List()
			if err != nil {
				return err
			}
			if detailed {
				return printDetailed(procs)
			}
			printTable(procs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "print full JSON records instead of a summary table")
	return cmd
}

func newStatusCommand(c *command) *cobra.Command {
	var detailed bool
	cmd := &cobra.Command{
		Use:   "status <selector>",
		Short: "Show the status of one or more processes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := c.client().Status(args[0])
			if err != nil {
				return err
			}
			if detailed {
				return printDetailed(procs)
			}
			printTable(procs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "print full JSON records instead of a summary table")
	return cmd
}

func newReloadCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "reload <config>",
		Short: "Start any process declared in config that isn't already running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgs, err := config.Load(args[0])
			if err != nil {
				return apperrors.Wrap(apperrors.KindValidationFailed, "load config", err)
			}
			result, err := c.client().ReloadConfig(cfgs)
			if err != nil {
				return err
			}
			for _, name := range result.Added {
				fmt.Printf("%s: started\n", name)
			}
			for _, name := range result.Existing {
				fmt.Printf("%s: already running, left untouched\n", name)
			}
			return nil
		},
	}
}

func newLogsCommand(c *command) *cobra.Command {
	var lines int
	var follow bool
	var stderrOnly bool
	cmd := &cobra.Command{
		Use:   "logs <selector>",
		Short: "Show captured stdout/stderr for a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(c, args[0], lines, follow, stderrOnly)
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 50, "number of lines to show")
	cmd.Flags().BoolVar(&follow, "follow", false, "keep polling for new output")
	cmd.Flags().BoolVar(&stderrOnly, "stderr", false, "show stderr only")
	return cmd
}

// runLogs prints the requested tail once, and when follow is set keeps
// re-polling Logs on an interval and printing only the lines not already
// shown. The IPC protocol has no streaming primitive, so following is a
// client-side best-effort poll rather than a push subscription.
func runLogs(c *command, selector string, n int, follow, stderrOnly bool) error {
	var prev []string
	for {
		lines, err := c.client().Logs(selector, n)
		if err != nil {
			return err
		}
		out := lines.Stdout
		if stderrOnly {
			out = lines.Stderr
		}
		// Skip the longest prefix of this tail that repeats the end of the
		// previous one.
		start := 0
		for k := min(len(prev), len(out)); k > 0; k-- {
			if slices.Equal(prev[len(prev)-k:], out[:k]) {
				start = k
				break
			}
		}
		for _, line := range out[start:] {
			fmt.Println(line)
		}
		prev = out
		if !follow {
			return nil
		}
		time.Sleep(time.Second)
	}
}
