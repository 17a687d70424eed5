// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/config"
	"github.com/hutch-systems/hutch/lib/nspawn"
)

// createParams holds the parameters for the create command.
type createParams struct {
	cli.ConfigFlag
	Profile string `flag:"profile" desc:"machine profile from the profile directory"`
}

func createCommand() *cli.Command {
	var params createParams

	return &cli.Command{
		Name:    "create",
		Summary: "Create, bootstrap, and start a new machine",
		Description: `Create a machine: allocate its dataset, install a base system with
the configured bootstrap command, write network and container
configuration, enable it for boot, start it, and set the timezone and
locale inside. The identifier must be a free number between 1 and 253;
it becomes the machine's address on the bridge.

A profile (--profile) adds resource limits and bind mounts from
<profile_dir>/<name>.jsonc.`,
		Usage: "hutch create ID [flags]",
		Examples: []cli.Example{
			{
				Description: "Create machine 12 with default policy",
				Command:     "hutch create 12",
			},
			{
				Description: "Create machine 12 with the webserver profile",
				Command:     "hutch create 12 --profile webserver",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("create", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("create takes exactly one machine identifier")
			}
			id := args[0]

			rt, err := newRuntime(&params.ConfigFlag, logger)
			if err != nil {
				return err
			}
			registry, err := rt.load(ctx)
			if err != nil {
				return err
			}

			profile, err := loadProfile(rt.cfg, params.Profile)
			if err != nil {
				return err
			}

			var detail map[string]string
			if params.Profile != "" {
				detail = map[string]string{"profile": params.Profile}
			}
			createErr := rt.manager.Create(ctx, registry, id, profile)
			rt.journal.Append("create", id, detail, createErr)
			if createErr != nil {
				return wrapMachineError(createErr)
			}

			fmt.Printf("machine %s created and running\n", id)
			return nil
		},
	}
}

// loadProfile resolves the --profile flag: empty means the built-in
// default (no limits, no binds).
func loadProfile(cfg *config.Config, name string) (*nspawn.Profile, error) {
	if name == "" {
		return nspawn.DefaultProfile(), nil
	}
	profile, err := nspawn.LoadProfile(cfg.ProfileDir, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, cli.NotFound("%v", err).
				WithHint(fmt.Sprintf("Profiles live in %s as <name>.jsonc files.", cfg.ProfileDir))
		}
		return nil, cli.Validation("%v", err)
	}
	return profile, nil
}
