// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/version"
)

// Root builds and returns the complete hutch command tree.
//
// The root command has a Run fallback of its own: invoked with no
// arguments it renders the machine table, and invoked with a name
// that matches no subcommand it treats the name as a machine
// reference and opens a shell. Command names therefore shadow machine
// aliases at the top level; the shell fallback is reached only for
// names that are not commands.
func Root() *cli.Command {
	manage := manageCommand()

	return &cli.Command{
		Name: "hutch",
		Description: `hutch: OS container administration for a single host.

Machines are systemd-nspawn containers backed by per-machine ZFS
datasets, numbered 1-253. hutch discovers them from host state on
every run (dataset listing, activation links, the supervisor's live
list, per-machine files) and drives their lifecycle against that
state. Configuration comes from --config on each subcommand, the
HUTCH_CONFIG environment variable, or built-in defaults.`,
		Usage: "hutch [command | machine] [flags]",
		Subcommands: []*cli.Command{
			listCommand(),
			watchCommand(),
			createCommand(),
			destroyCommand(),
			renameCommand(),
			cloneCommand(),
			startCommand(),
			stopCommand(),
			restartCommand(),
			enableCommand(),
			disableCommand(),
			statusCommand(),
			showCommand(),
			manage,
			shorthandCommand(manage),
			execCommand(),
			backupCommand(),
			exportCommand(),
			importCommand(),
			journalCommand(),
			doctorCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Usage:   "hutch version",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("hutch %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Show every machine with state and storage figures",
				Command:     "hutch list",
			},
			{
				Description: "Create machine 12 with the webserver profile",
				Command:     "hutch create 12 --profile webserver",
			},
			{
				Description: "Open a shell in the machine aliased web",
				Command:     "hutch web",
			},
			{
				Description: "Run a command in every running machine",
				Command:     "hutch exec all uname -r",
			},
			{
				Description: "Give machine 12 a memorable name",
				Command:     "hutch m 12 set-alias web",
			},
			{
				Description: "Check the host setup",
				Command:     "hutch doctor",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			configFlag := &cli.ConfigFlag{}
			if len(args) == 0 {
				rt, err := newRuntime(configFlag, logger)
				if err != nil {
					return err
				}
				registry, err := rt.load(ctx)
				if err != nil {
					return err
				}
				return renderTable(os.Stdout, registry.Records)
			}
			return openShell(ctx, configFlag, args, logger)
		},
	}
}
