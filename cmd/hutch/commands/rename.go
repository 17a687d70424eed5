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

// renameParams holds the parameters for the rename command.
type renameParams struct {
	cli.ConfigFlag
}

func renameCommand() *cli.Command {
	var params renameParams

	return &cli.Command{
		Name:    "rename",
		Summary: "Move a machine to a new identifier",
		Description: `Rename a stopped machine: the dataset, container configuration, and
activation link move to the new identifier, and the network
configuration is rewritten for the new bridge address. Alias and
hostname travel with the dataset. A boot-enabled machine is disabled
under the old identifier and re-enabled under the new one.`,
		Usage: "hutch rename SOURCE NEWID",
		Examples: []cli.Example{
			{
				Description: "Move machine web to identifier 9",
				Command:     "hutch rename web 9",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("rename", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 2 {
				return cli.Validation("rename takes a source machine and a new identifier")
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
			newID := args[1]

			renameErr := rt.manager.Rename(ctx, registry, record.ID, newID)
			rt.journal.Append("rename", record.ID, map[string]string{"to": newID}, renameErr)
			if renameErr != nil {
				return wrapMachineError(renameErr)
			}

			fmt.Printf("machine %s renamed to %s\n", record.ID, newID)
			return nil
		},
	}
}
