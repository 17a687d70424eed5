// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/machine"
)

// execParams holds the parameters for the exec command.
type execParams struct {
	cli.ConfigFlag
}

func execCommand() *cli.Command {
	var params execParams

	return &cli.Command{
		Name:    "exec",
		Summary: "Run a command inside one or every machine",
		Description: `Run a command inside a machine via the supervisor, or inside every
running machine with the target "all". Output lines are prefixed with
the machine identifier. With "all", one machine's failure never stops
the others; the exit code is non-zero when any machine failed. With a
single target, the command's own exit code is passed through.

Flags after the command belong to the command: everything following
the target is handed over verbatim.`,
		Usage: "hutch exec ID|all COMMAND [ARG...]",
		Examples: []cli.Example{
			{
				Description: "Kernel seen by one machine",
				Command:     "hutch exec web uname -r",
			},
			{
				Description: "Pending updates everywhere",
				Command:     "hutch exec all apt list --upgradable",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := cli.FlagsFromParams("exec", &params)
			// Leave the machine's command line untouched: the first
			// non-flag argument ends hutch's own flag parsing.
			flagSet.SetInterspersed(false)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) < 2 {
				return cli.Validation("exec takes a machine (or \"all\") and a command")
			}
			target, argv := args[0], args[1:]

			rt, err := newRuntime(&params.ConfigFlag, logger)
			if err != nil {
				return err
			}
			registry, err := rt.load(ctx)
			if err != nil {
				return err
			}

			results, err := rt.manager.Exec(ctx, registry, target, argv)
			if err != nil {
				return wrapMachineError(err)
			}

			failed := false
			for _, result := range results {
				fmt.Print(machine.PrefixLines(result.Machine, result.Output))
				if result.Err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", result.Machine, result.Err)
					failed = true
				} else if result.ExitCode != 0 {
					failed = true
				}
			}

			if len(results) == 1 && results[0].Err == nil && results[0].ExitCode != 0 {
				return &cli.ExitError{Code: results[0].ExitCode}
			}
			if failed {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
