// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/machine"
)

// destroyParams holds the parameters for the destroy command.
type destroyParams struct {
	cli.ConfigFlag
}

func destroyCommand() *cli.Command {
	var params destroyParams

	return &cli.Command{
		Name:    "destroy",
		Summary: "Permanently destroy a machine and its data",
		Description: `Destroy a machine: unlink it from the supervisor, remove its network
and container configuration, and destroy its dataset recursively,
snapshots included. There is no undo.

The machine must be stopped and disabled first, and the operator must
type the word DESTROY at the prompt. Anything else aborts with no
effect.`,
		Usage: "hutch destroy ID",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("destroy", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("destroy takes exactly one machine")
			}

			rt, err := newRuntime(&params.ConfigFlag, logger)
			if err != nil {
				return err
			}
			registry, err := rt.load(ctx)
			if err != nil {
				return err
			}
			record, err := resolve(registry, args[0])
			if err != nil {
				return err
			}

			// Precondition failures beat the prompt: never make the
			// operator type DESTROY for an operation that will refuse
			// anyway.
			if record.Running {
				return cli.Conflict("machine %s is running", record.ID).
					WithHint("Stop it first: hutch stop " + record.ID)
			}
			if record.Enabled {
				return cli.Conflict("machine %s is enabled for boot", record.ID).
					WithHint("Disable it first: hutch disable " + record.ID)
			}

			confirmed, err := confirmDestroy(os.Stdin, os.Stdout, record)
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("aborted, nothing destroyed")
				return &cli.ExitError{Code: 1}
			}

			destroyErr := rt.manager.Destroy(ctx, registry, record.ID)
			rt.journal.Append("destroy", record.ID, nil, destroyErr)
			if destroyErr != nil {
				return wrapMachineError(destroyErr)
			}

			fmt.Printf("machine %s destroyed\n", record.ID)
			return nil
		},
	}
}

// confirmDestroy prompts for the literal word DESTROY. The match is
// case-sensitive and exact apart from the line terminator: the point
// of the prompt is deliberate typing, not a convenient y.
func confirmDestroy(in io.Reader, out io.Writer, record machine.Record) (bool, error) {
	name := record.ID
	if record.Alias != "" {
		name = fmt.Sprintf("%s (alias %q)", record.ID, record.Alias)
	}
	fmt.Fprintf(out, "This permanently destroys machine %s and all its data.\n", name)
	fmt.Fprint(out, "Type DESTROY to confirm: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line == "DESTROY", nil
}
