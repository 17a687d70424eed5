// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/machine"
	"github.com/hutch-systems/hutch/lib/watchui"
)

// watchParams holds the parameters for the watch command.
type watchParams struct {
	cli.ConfigFlag
	Interval time.Duration `flag:"interval" desc:"refresh interval" default:"2s"`
}

func watchCommand() *cli.Command {
	var params watchParams

	return &cli.Command{
		Name:    "watch",
		Summary: "Live machine board in the terminal",
		Description: `Open a full-screen board of every machine, refreshed on a fixed
interval: power state, boot enablement, hostname, address, and
dataset space figures. Press / to narrow the board with a fuzzy
filter, r to refresh immediately, q to quit.

The board is read-only; lifecycle changes stay on the plain commands
so every state change runs through the operation journal.`,
		Usage: "hutch watch [flags]",
		Examples: []cli.Example{
			{
				Description: "Slow the refresh down on a busy pool",
				Command:     "hutch watch --interval 10s",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("watch", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if params.Interval <= 0 {
				return cli.Validation("--interval must be positive")
			}

			rt, err := newRuntime(&params.ConfigFlag, logger)
			if err != nil {
				return err
			}
			// Load once before entering the alt screen so configuration
			// and permission problems surface as plain errors.
			if _, err := rt.load(ctx); err != nil {
				return err
			}

			loader := func(ctx context.Context) ([]machine.Record, error) {
				registry, err := rt.manager.Load(ctx)
				if err != nil {
					return nil, err
				}
				return registry.Records, nil
			}

			model := watchui.NewModel(ctx, loader, params.Interval)
			program := tea.NewProgram(model, tea.WithAltScreen())
			_, err = program.Run()
			return err
		},
	}
}
