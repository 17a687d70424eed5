// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/clock"
	"github.com/hutch-systems/hutch/lib/config"
	"github.com/hutch-systems/hutch/lib/journal"
	"github.com/hutch-systems/hutch/lib/machine"
	"github.com/hutch-systems/hutch/lib/machined"
	"github.com/hutch-systems/hutch/lib/zfs"
)

// runtime bundles the collaborators every command needs: the effective
// configuration, the storage pool, the supervisor, the lifecycle
// manager wired to both, and the operation journal. Constructed fresh
// per invocation — nothing is cached between runs.
type runtime struct {
	cfg     *config.Config
	pool    *zfs.Pool
	sup     *machined.Manager
	manager *machine.Manager
	journal *journal.Journal
}

// newRuntime loads the configuration selected by the --config flag and
// wires the collaborator stack.
func newRuntime(flag *cli.ConfigFlag, logger *slog.Logger) (*runtime, error) {
	cfg, err := flag.Load()
	if err != nil {
		return nil, cli.Validation("%v", err)
	}

	clk := clock.Real()
	pool := zfs.New(cfg.Binaries.Zfs, cfg.Storage.ParentDataset)
	sup := machined.New(cfg.Binaries.Machinectl, cfg.Binaries.Systemctl,
		cfg.Binaries.SystemdRun, cfg.Supervisor.WantsDir)

	return &runtime{
		cfg:     cfg,
		pool:    pool,
		sup:     sup,
		manager: machine.New(cfg, pool, sup, clk, logger),
		journal: journal.New(cfg.JournalPath, clk, logger),
	}, nil
}

// load builds the registry, translating engine errors into categorized
// CLI errors.
func (rt *runtime) load(ctx context.Context) (*machine.Registry, error) {
	registry, err := rt.manager.Load(ctx)
	if err != nil {
		return nil, wrapMachineError(err)
	}
	return registry, nil
}

// resolve maps a name (identifier or alias) to its record, or returns
// a categorized not-found error with a pointer at the listing.
func resolve(registry *machine.Registry, name string) (machine.Record, error) {
	record, ok := registry.Lookup(name)
	if !ok {
		return machine.Record{}, cli.NotFound("no machine named %q", name).
			WithHint("Run 'hutch list' to see known machines.")
	}
	return record, nil
}

// resolveAll resolves every name up front so multi-target commands
// fail before touching the first machine.
func resolveAll(registry *machine.Registry, names []string) ([]machine.Record, error) {
	records := make([]machine.Record, 0, len(names))
	for _, name := range names {
		record, err := resolve(registry, name)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// wrapMachineError maps the engine's typed errors onto CLI categories
// so scripts get meaningful exit codes. Errors that are already
// categorized, and errors with no better category, pass through.
func wrapMachineError(err error) error {
	if err == nil {
		return nil
	}

	var toolErr *cli.ToolError
	if errors.As(err, &toolErr) {
		return err
	}

	var notFound *machine.NotFoundError
	var invalid *machine.ValidationError
	var inconsistent *machine.ConsistencyError
	var conflict *machine.ConflictError
	switch {
	case errors.As(err, &notFound):
		return cli.NotFound("%v", err).
			WithHint("Run 'hutch list' to see known machines.")
	case errors.As(err, &invalid):
		return cli.Validation("%v", err)
	case errors.As(err, &inconsistent):
		return cli.Conflict("%v", err).
			WithHint("Edit the alias files under the machine subtrees so every alias is unique, then retry.")
	case errors.As(err, &conflict):
		return cli.Conflict("%v", err)
	case errors.Is(err, os.ErrPermission):
		return cli.Forbidden("%v", err).WithHint("Re-run as root.")
	}
	return err
}
