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

// cloneParams holds the parameters for the clone command.
type cloneParams struct {
	cli.ConfigFlag
	Profile string `flag:"profile" desc:"machine profile for the clone"`
}

func cloneCommand() *cli.Command {
	var params cloneParams

	return &cli.Command{
		Name:    "clone",
		Summary: "Duplicate a machine under a new identifier",
		Description: `Clone a stopped machine by snapshot and transfer: the source dataset
is snapshotted, replicated into the target identifier, and the
snapshots are removed. The clone gets fresh network and container
configuration, inherits alias and hostname under a "cloned-" prefix
(when the source has them and the alias is still free), and inherits
boot enablement. Clones are never auto-started.`,
		Usage: "hutch clone SOURCE NEWID [flags]",
		Examples: []cli.Example{
			{
				Description: "Clone machine web into identifier 9",
				Command:     "hutch clone web 9",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("clone", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 2 {
				return cli.Validation("clone takes a source machine and a new identifier")
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

			profile, err := loadProfile(rt.cfg, params.Profile)
			if err != nil {
				return err
			}

			cloneErr := rt.manager.Clone(ctx, registry, record.ID, newID, profile)
			rt.journal.Append("clone", record.ID, map[string]string{"target": newID}, cloneErr)
			if cloneErr != nil {
				return wrapMachineError(cloneErr)
			}

			fmt.Printf("machine %s cloned to %s (stopped)\n", record.ID, newID)
			return nil
		},
	}
}
