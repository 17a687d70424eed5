// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/config"
)

// openShell handles "hutch <machine>": resolve the name, then replace
// the hutch process with machinectl shell so the session owns the
// terminal directly. On success this never returns.
func openShell(ctx context.Context, flag *cli.ConfigFlag, args []string, logger *slog.Logger) error {
	name := args[0]
	if len(args) > 1 {
		return cli.Validation("unexpected argument after %q: %s", name, args[1]).
			WithHint("A bare machine name opens a shell; use 'hutch exec' to run a command.")
	}

	rt, err := newRuntime(flag, logger)
	if err != nil {
		return err
	}
	registry, err := rt.load(ctx)
	if err != nil {
		return err
	}

	record, ok := registry.Lookup(name)
	if !ok {
		return cli.NotFound("%q is neither a command nor a machine", name).
			WithHint("Run 'hutch --help' for commands, or 'hutch list' for machines.")
	}
	if !record.Running {
		return cli.Conflict("machine %s is not running", record.ID).
			WithHint("Start it first: hutch start " + record.ID)
	}

	argv := rt.sup.ShellArgv(record.ID)
	binary, err := config.BinaryPath(argv[0])
	if err != nil {
		return cli.Internal("%v", err)
	}
	return unix.Exec(binary, argv, os.Environ())
}
