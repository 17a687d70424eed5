// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
)

// passthroughParams holds the parameters shared by the thin
// supervisor pass-through commands.
type passthroughParams struct {
	cli.ConfigFlag
}

func enableCommand() *cli.Command {
	var params passthroughParams

	return &cli.Command{
		Name:    "enable",
		Summary: "Enable machines to start at boot",
		Usage:   "hutch enable ID... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("enable", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runPower(ctx, &params.ConfigFlag, args, logger,
				powerOp{name: "enable", done: "enabled"},
				func(rt *runtime, id string) error {
					return rt.sup.Enable(ctx, id)
				})
		},
	}
}

func disableCommand() *cli.Command {
	var params passthroughParams

	return &cli.Command{
		Name:    "disable",
		Summary: "Remove machines from boot activation",
		Usage:   "hutch disable ID... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("disable", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runPower(ctx, &params.ConfigFlag, args, logger,
				powerOp{name: "disable", done: "disabled"},
				func(rt *runtime, id string) error {
					return rt.sup.Disable(ctx, id)
				})
		},
	}
}

func statusCommand() *cli.Command {
	var params passthroughParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show supervisor status for machines",
		Description: `Print machinectl status for each machine. A machine whose status
query fails is reported and does not stop the remaining machines; the
command exits non-zero when any query produced no output at all.`,
		Usage: "hutch status ID... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runQuery(ctx, &params.ConfigFlag, args, logger,
				func(rt *runtime, id string) (string, error) {
					return rt.sup.Status(ctx, id)
				})
		},
	}
}

func showCommand() *cli.Command {
	var params passthroughParams

	return &cli.Command{
		Name:    "show",
		Summary: "Show supervisor properties for machines",
		Usage:   "hutch show ID... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runQuery(ctx, &params.ConfigFlag, args, logger,
				func(rt *runtime, id string) (string, error) {
					return rt.sup.Show(ctx, id)
				})
		},
	}
}

// runQuery drives the read-only pass-through commands. Partial output
// is printed even when the query itself exits non-zero (machinectl
// reports stopped machines that way); only a query with no output is
// counted as a failure.
func runQuery(ctx context.Context, flag *cli.ConfigFlag, args []string, logger *slog.Logger,
	query func(rt *runtime, id string) (string, error)) error {
	if len(args) == 0 {
		return cli.Validation("at least one machine required")
	}

	rt, err := newRuntime(flag, logger)
	if err != nil {
		return err
	}
	registry, err := rt.load(ctx)
	if err != nil {
		return err
	}
	records, err := resolveAll(registry, args)
	if err != nil {
		return err
	}

	failed := false
	for i, record := range records {
		if i > 0 {
			fmt.Println()
		}
		output, queryErr := query(rt, record.ID)
		if output != "" {
			fmt.Print(output)
			if !strings.HasSuffix(output, "\n") {
				fmt.Println()
			}
		}
		if queryErr != nil && output == "" {
			fmt.Fprintf(os.Stderr, "%s: %v\n", record.ID, queryErr)
			failed = true
		}
	}
	if failed {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
