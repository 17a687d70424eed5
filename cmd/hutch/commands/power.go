// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
)

// startParams holds the parameters for the start command.
type startParams struct {
	cli.ConfigFlag
}

// stopParams holds the parameters for the stop and restart commands.
type stopParams struct {
	cli.ConfigFlag
	Kill bool `flag:"kill" desc:"kill the machine instead of a clean shutdown"`
}

func startCommand() *cli.Command {
	var params startParams

	return &cli.Command{
		Name:    "start",
		Summary: "Start machines and wait until they are running",
		Description: `Start one or more machines. Blocks until each machine appears in the
supervisor's live list; a machine that is already running is left
alone. There is no timeout — a machine that never comes up holds the
command until interrupted.`,
		Usage: "hutch start ID... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("start", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runPower(ctx, &params.ConfigFlag, args, logger,
				powerOp{name: "start", done: "started"},
				func(rt *runtime, id string) error {
					return rt.manager.Start(ctx, id)
				})
		},
	}
}

func stopCommand() *cli.Command {
	var params stopParams

	return &cli.Command{
		Name:    "stop",
		Summary: "Stop machines and wait until they are down",
		Description: `Stop one or more machines cleanly (an orderly poweroff inside the
machine), or immediately with --kill. Blocks until each machine leaves
the supervisor's live list; a stopped machine is left alone.`,
		Usage: "hutch stop ID... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("stop", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			op := powerOp{name: "stop", done: "stopped"}
			if params.Kill {
				op.detail = map[string]string{"kill": "true"}
			}
			return runPower(ctx, &params.ConfigFlag, args, logger, op,
				func(rt *runtime, id string) error {
					return rt.manager.Stop(ctx, id, params.Kill)
				})
		},
	}
}

func restartCommand() *cli.Command {
	var params stopParams

	return &cli.Command{
		Name:    "restart",
		Summary: "Stop and start machines",
		Description: `Restart one or more machines: a clean stop (or --kill) followed by a
start, waiting for each transition.`,
		Usage: "hutch restart ID... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("restart", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			op := powerOp{name: "restart", done: "restarted"}
			if params.Kill {
				op.detail = map[string]string{"kill": "true"}
			}
			return runPower(ctx, &params.ConfigFlag, args, logger, op,
				func(rt *runtime, id string) error {
					return rt.manager.Restart(ctx, id, params.Kill)
				})
		},
	}
}

// powerOp names a power operation for journaling and reporting.
type powerOp struct {
	name   string
	done   string
	detail map[string]string
}

// runPower is the shared driver for the power commands: resolve every
// target before touching the first one, then run the operation in
// argument order, journaling each machine separately. The first
// failure stops the sequence.
func runPower(ctx context.Context, flag *cli.ConfigFlag, args []string, logger *slog.Logger,
	op powerOp, run func(rt *runtime, id string) error) error {
	if len(args) == 0 {
		return cli.Validation("%s takes at least one machine", op.name)
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

	for _, record := range records {
		opErr := run(rt, record.ID)
		rt.journal.Append(op.name, record.ID, op.detail, opErr)
		if opErr != nil {
			return wrapMachineError(opErr)
		}
		fmt.Printf("machine %s %s\n", record.ID, op.done)
	}
	return nil
}
