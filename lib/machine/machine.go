// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package machine is the registry and lifecycle engine. It discovers
// the set of machines and their attributes from the host's
// uncoordinated sources of truth (dataset enumeration, activation
// links, the supervisor's live list, and a handful of files inside
// each machine's subtree), reconciles identifiers and aliases into one
// collision-checked namespace, and drives the state-changing
// operations with precondition checks against that discovered state.
//
// Nothing is cached or persisted: every invocation rebuilds the
// registry from host state, performs one operation, and exits. The
// filesystem artifacts themselves are the database.
//
// The volume layer and the supervisor are reached through the Storage
// and Supervisor interfaces, implemented by *zfs.Pool and
// *machined.Manager. Operations that mutate host state outside those
// two collaborators (symlinks, config files, files inside subtrees)
// write through this package directly.
package machine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hutch-systems/hutch/lib/clock"
	"github.com/hutch-systems/hutch/lib/config"
	"github.com/hutch-systems/hutch/lib/zfs"
)

const (
	// MinID and MaxID bound machine identifiers. The identifier
	// doubles as the final octet of the machine's bridge address, so
	// the range stays clear of the network (0), the gateway's
	// conventional .1 is allowed (the bridge may sit elsewhere), and
	// the top of the octet range (254, 255) is reserved.
	MinID = 1
	MaxID = 253

	// BackupSuffix marks backup datasets. Leaves ending in it are
	// invisible to the registry, and no machine identifier can ever
	// carry it (identifiers are purely numeric).
	BackupSuffix = "-backup"

	// pollInterval is how often power operations re-read the running
	// set while waiting for a machine to appear or disappear.
	pollInterval = 100 * time.Millisecond

	// settleDelay is how long create waits after the first boot
	// before running configuration commands inside the machine.
	settleDelay = time.Second
)

// Storage is the slice of the volume layer the engine drives.
// *zfs.Pool implements it.
type Storage interface {
	List(ctx context.Context) ([]zfs.Dataset, error)
	Create(ctx context.Context, leaf, recordsize string) error
	DestroyRecursive(ctx context.Context, leaf string) error
	Rename(ctx context.Context, oldLeaf, newLeaf string) error
	Snapshot(ctx context.Context, leaf, label string) error
	DestroySnapshot(ctx context.Context, leaf, label string) error
	Send(ctx context.Context, leaf, label string, w io.Writer) error
	Receive(ctx context.Context, leaf string, r io.Reader, force bool) error
	Replicate(ctx context.Context, sourceLeaf, label, targetLeaf string, force bool) error
}

// Supervisor is the slice of the machine manager the engine drives.
// *machined.Manager implements it.
type Supervisor interface {
	ListRunning(ctx context.Context) ([]string, error)
	Start(ctx context.Context, id string) error
	Poweroff(ctx context.Context, id string) error
	Terminate(ctx context.Context, id string) error
	Enable(ctx context.Context, id string) error
	Disable(ctx context.Context, id string) error
	IsEnabled(id string) bool
	RunIn(ctx context.Context, id string, argv []string) (string, int, error)
}

// Manager carries the collaborators and configuration for registry
// loads and lifecycle operations. Construct with New.
type Manager struct {
	cfg    *config.Config
	pool   Storage
	sup    Supervisor
	clock  clock.Clock
	logger *slog.Logger

	// bootstrap installs a base system into a directory. Tests
	// substitute it; production runs the configured command with the
	// operator's terminal attached.
	bootstrap func(ctx context.Context, argv []string) error
}

// New returns a Manager driving the given collaborators.
func New(cfg *config.Config, pool Storage, sup Supervisor, clk clock.Clock, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		pool:      pool,
		sup:       sup,
		clock:     clk,
		logger:    logger,
		bootstrap: runBootstrap,
	}
}

// runBootstrap executes the bootstrap command with stdout and stderr
// attached to the operator's terminal. Base system installation is
// long and chatty; hiding its output would leave create looking hung
// for minutes.
func runBootstrap(ctx context.Context, argv []string) error {
	command := exec.CommandContext(ctx, argv[0], argv[1:]...)
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	if err := command.Run(); err != nil {
		return fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}
	return nil
}

// ValidateID checks that an identifier is a canonical decimal in
// [MinID, MaxID]: no leading zeros, no sign, no whitespace. Applied to
// every operation that brings a new identifier into existence (create,
// clone, import).
func ValidateID(id string) error {
	value, err := strconv.Atoi(id)
	if err != nil || strconv.Itoa(value) != id || value < MinID || value > MaxID {
		return &ValidationError{Reason: fmt.Sprintf(
			"machine identifier must be a number between %d and %d (got %q)", MinID, MaxID, id)}
	}
	return nil
}

// snapshotLabel builds a label for operation-scoped snapshots. The
// timestamp makes leftovers attributable; the uuid makes concurrent
// invocations collision-free.
func (m *Manager) snapshotLabel(operation string) string {
	return fmt.Sprintf("hutch-%s-%s-%s",
		operation,
		m.clock.Now().UTC().Format("20060102T150405Z"),
		uuid.NewString())
}
