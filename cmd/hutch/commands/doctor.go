// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/cmd/hutch/cli/doctor"
	"github.com/hutch-systems/hutch/lib/config"
	"github.com/hutch-systems/hutch/lib/netconf"
	"github.com/hutch-systems/hutch/lib/zfs"
)

// doctorParams holds the parameters for the doctor command.
type doctorParams struct {
	cli.ConfigFlag
	cli.JSONOutput
	Fix    bool `flag:"fix" desc:"attempt automatic repair of failed checks"`
	DryRun bool `flag:"dry-run" desc:"show what --fix would do without changing anything"`
}

// maxFixIterations bounds the check-fix-recheck loop. One fix can
// unblock another check, but a fix that keeps "succeeding" without
// its check turning green must not loop forever.
const maxFixIterations = 5

func doctorCommand() *cli.Command {
	var params doctorParams

	return &cli.Command{
		Name:    "doctor",
		Summary: "Check the host environment for problems",
		Description: `Verify everything hutch depends on: the zfs, machinectl, systemctl,
and systemd-run binaries, a booted systemd, the parent dataset and its
mountpoint, a bridge configuration the machine addressing can be
derived from, and writable supervisor and journal directories.

Failed checks with a known repair can be fixed in place with --fix;
--dry-run previews the repairs without touching anything. Exits 1
when any check fails.`,
		Usage: "hutch doctor [flags]",
		Examples: []cli.Example{
			{
				Description: "Repair what can be repaired",
				Command:     "sudo hutch doctor --fix",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("doctor", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}

			cfg, err := params.Load()
			if err != nil {
				return cli.Validation("%v", err)
			}

			results := runChecks(ctx, cfg)

			var outcome doctor.Outcome
			if params.Fix || params.DryRun {
				repaired := make(map[string]bool)
				for iteration := 0; ; iteration++ {
					pass := doctor.ExecuteFixes(ctx, results, params.DryRun)
					outcome.FixedCount += pass.FixedCount
					outcome.PermissionDenied = outcome.PermissionDenied || pass.PermissionDenied
					outcome.ElevatedSkipped = pass.ElevatedSkipped
					if params.DryRun || pass.FixedCount == 0 || iteration >= maxFixIterations {
						break
					}
					for _, result := range results {
						if result.Status == doctor.StatusFixed {
							repaired[result.Name] = true
						}
					}
					results = runChecks(ctx, cfg)
				}
				doctor.MarkRepaired(results, repaired)
			}

			if done, err := params.EmitJSON(doctor.BuildJSON(results, params.DryRun, outcome)); done {
				if err != nil {
					return err
				}
				for _, result := range results {
					if result.Status == doctor.StatusFail {
						return &cli.ExitError{Code: 1}
					}
				}
				return nil
			}
			return doctor.PrintChecklist(results, params.Fix, params.DryRun, outcome)
		},
	}
}

// runChecks probes the host and returns one result per check. Checks
// that cannot produce a meaningful answer because a prerequisite
// already failed are skipped, not failed twice.
func runChecks(ctx context.Context, cfg *config.Config) []doctor.Result {
	var results []doctor.Result

	zfsOK := false
	if path, err := config.BinaryPath(cfg.Binaries.Zfs); err != nil {
		results = append(results, doctor.Fail("zfs binary", err.Error()))
	} else {
		zfsOK = true
		results = append(results, doctor.Pass("zfs binary", path))
	}
	for _, binary := range []struct{ name, configured string }{
		{"machinectl binary", cfg.Binaries.Machinectl},
		{"systemctl binary", cfg.Binaries.Systemctl},
		{"systemd-run binary", cfg.Binaries.SystemdRun},
	} {
		if path, err := config.BinaryPath(binary.configured); err != nil {
			results = append(results, doctor.Fail(binary.name, err.Error()))
		} else {
			results = append(results, doctor.Pass(binary.name, path))
		}
	}

	if _, err := os.Stat("/run/systemd/system"); err != nil {
		results = append(results, doctor.Fail("systemd booted",
			"host is not running under systemd"))
	} else {
		results = append(results, doctor.Pass("systemd booted",
			"/run/systemd/system present"))
	}

	if !zfsOK {
		results = append(results, doctor.Skip("parent dataset", "zfs binary unavailable"))
	} else {
		pool := zfs.New(cfg.Binaries.Zfs, cfg.Storage.ParentDataset)
		if datasets, err := pool.List(ctx); err != nil {
			results = append(results, doctor.Fail("parent dataset",
				fmt.Sprintf("%v (create it: zfs create -o mountpoint=%s %s)",
					err, cfg.Storage.Mountpoint, cfg.Storage.ParentDataset)))
		} else {
			results = append(results, doctor.Pass("parent dataset",
				fmt.Sprintf("%s, %d dataset(s)", cfg.Storage.ParentDataset, len(datasets))))
		}
	}

	if info, err := os.Stat(cfg.Storage.Mountpoint); err != nil {
		results = append(results, doctor.Fail("machines mountpoint",
			fmt.Sprintf("%s missing (is the parent dataset mounted?)", cfg.Storage.Mountpoint)))
	} else if !info.IsDir() {
		results = append(results, doctor.Fail("machines mountpoint",
			cfg.Storage.Mountpoint+" is not a directory"))
	} else {
		results = append(results, doctor.Pass("machines mountpoint", cfg.Storage.Mountpoint))
	}

	bridgeOK := false
	if _, err := os.ReadFile(cfg.Network.BridgeConfigFile); err != nil {
		results = append(results, doctor.Fail("bridge config", err.Error()))
	} else {
		bridgeOK = true
		results = append(results, doctor.Pass("bridge config", cfg.Network.BridgeConfigFile))
	}
	if !bridgeOK {
		results = append(results, doctor.Skip("bridge gateway", "bridge config unreadable"))
	} else if gateway, err := netconf.Gateway(cfg.Network.BridgeConfigFile); err != nil {
		results = append(results, doctor.Fail("bridge gateway", err.Error()))
	} else {
		results = append(results, doctor.Pass("bridge gateway", gateway))
	}

	results = append(results,
		checkWritableDir("machines directory", cfg.Supervisor.MachinesDir),
		checkWritableDir("nspawn directory", cfg.Supervisor.NspawnDir),
		checkWritableDir("wants directory", cfg.Supervisor.WantsDir),
		checkWritableDir("journal directory", filepath.Dir(cfg.JournalPath)),
	)

	return results
}

// checkWritableDir verifies that dir exists and the current process
// can write to it. A missing directory carries an elevated mkdir fix.
// An existing directory a non-root user cannot write to is a warning,
// not a failure: state changes need root anyway.
func checkWritableDir(name, dir string) doctor.Result {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return doctor.FailElevated(name, dir+" does not exist",
			"mkdir -p "+dir,
			func(context.Context) error { return os.MkdirAll(dir, 0o755) })
	case err != nil:
		return doctor.Fail(name, err.Error())
	case !info.IsDir():
		return doctor.Fail(name, dir+" is not a directory")
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		if !doctor.IsRoot() {
			return doctor.Warn(name, dir+" not writable by the current user (state changes need root)")
		}
		return doctor.Fail(name, fmt.Sprintf("%s not writable: %v", dir, err))
	}
	return doctor.Pass(name, dir)
}
