// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/machine"
)

// manageParams holds the parameters shared by the manage subcommands.
type manageParams struct {
	cli.ConfigFlag
}

func manageCommand() *cli.Command {
	command := &cli.Command{
		Name:    "manage",
		Summary: "Change a machine's alias, hostname, or SSH keys",
		Description: `Per-machine settings that live inside the machine's subtree. The
machine may come before or after the subcommand ("hutch manage
set-alias 12 web" and "hutch m 12 set-alias web" are the same
command), and "m" works as a shorthand for "manage".`,
		Usage: "hutch manage <command> ID VALUE [flags]",
		Subcommands: []*cli.Command{
			setAliasCommand(),
			setHostnameCommand(),
			setAuthorizedKeysCommand(),
		},
	}
	command.Run = machineFirstDispatch(command)
	return command
}

// shorthandCommand wraps another command's subcommands under a short
// name. The subcommand list is shared, so help and dispatch stay in
// sync with the target automatically.
func shorthandCommand(target *cli.Command) *cli.Command {
	command := &cli.Command{
		Name:        "m",
		Summary:     "Shorthand for " + target.Name,
		Usage:       "hutch m <command> ID VALUE [flags]",
		Subcommands: target.Subcommands,
	}
	command.Run = machineFirstDispatch(command)
	return command
}

// machineFirstDispatch accepts the machine-first argument order:
// "hutch manage 12 set-alias web" re-dispatches as "set-alias 12 web".
// The dispatcher calls this only when the first argument matched no
// subcommand, so a machine reference in front is the one remaining
// valid shape.
func machineFirstDispatch(self *cli.Command) func(context.Context, []string, *slog.Logger) error {
	return func(ctx context.Context, args []string, logger *slog.Logger) error {
		if len(args) >= 2 {
			for _, sub := range self.Subcommands {
				if sub.Name == args[1] {
					reordered := append([]string{args[1], args[0]}, args[2:]...)
					return self.Execute(ctx, reordered, logger)
				}
			}
		}
		return cli.Validation("expected 'hutch %s <command> ID VALUE'", self.Name).
			WithHint(fmt.Sprintf("Run 'hutch %s --help' for the available settings.", self.Name))
	}
}

func setAliasCommand() *cli.Command {
	var params manageParams

	return &cli.Command{
		Name:    "set-alias",
		Summary: "Set a machine's alias",
		Description: `Write the machine's alias file. The alias becomes an addressable name
everywhere an identifier is accepted, so it must not be numeric, must
not be "all" (reserved by exec), and must not be claimed by another
machine.`,
		Usage: "hutch manage set-alias ID ALIAS [flags]",
		Examples: []cli.Example{
			{
				Description: "Name machine 12 web",
				Command:     "hutch m 12 set-alias web",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("set-alias", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runManage(ctx, &params.ConfigFlag, args, logger, "set-alias", "alias",
				func(rt *runtime, registry *machine.Registry, id, value string) error {
					return rt.manager.SetAlias(registry, id, value)
				})
		},
	}
}

func setHostnameCommand() *cli.Command {
	var params manageParams

	return &cli.Command{
		Name:    "set-hostname",
		Summary: "Set a machine's hostname",
		Description: `Set the hostname: live through hostnamectl when the machine is
running, otherwise by writing /etc/hostname inside the subtree for the
next boot.`,
		Usage: "hutch manage set-hostname ID HOSTNAME [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("set-hostname", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runManage(ctx, &params.ConfigFlag, args, logger, "set-hostname", "hostname",
				func(rt *runtime, registry *machine.Registry, id, value string) error {
					return rt.manager.SetHostname(ctx, registry, id, value)
				})
		},
	}
}

func setAuthorizedKeysCommand() *cli.Command {
	var params manageParams

	return &cli.Command{
		Name:    "set-authorized-keys",
		Summary: "Install an SSH authorized_keys file in a machine",
		Description: `Validate a local authorized_keys file and install it as root's
authorized_keys inside the machine, creating .ssh with restrictive
permissions and the subtree's root ownership. Overwrites any previous
key file.`,
		Usage: "hutch manage set-authorized-keys ID FILE [flags]",
		Examples: []cli.Example{
			{
				Description: "Install your keys into machine web",
				Command:     "hutch m web set-authorized-keys ~/.ssh/authorized_keys",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("set-authorized-keys", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runManage(ctx, &params.ConfigFlag, args, logger, "set-authorized-keys", "key_file",
				func(rt *runtime, registry *machine.Registry, id, value string) error {
					return rt.manager.SetAuthorizedKeys(registry, id, value)
				})
		},
	}
}

// runManage drives the manage subcommands: two positional arguments,
// machine first, then the value.
func runManage(ctx context.Context, flag *cli.ConfigFlag, args []string, logger *slog.Logger,
	operation, detailKey string,
	op func(rt *runtime, registry *machine.Registry, id, value string) error) error {
	if len(args) != 2 {
		return cli.Validation("%s takes a machine and a value", operation)
	}

	rt, err := newRuntime(flag, logger)
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
	value := args[1]

	opErr := op(rt, registry, record.ID, value)
	rt.journal.Append(operation, record.ID, map[string]string{detailKey: value}, opErr)
	if opErr != nil {
		return wrapMachineError(opErr)
	}

	fmt.Printf("machine %s: %s applied\n", record.ID, operation)
	return nil
}
