// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"context"
	"slices"

	"github.com/hutch-systems/hutch/lib/clock"
)

// Power operations are idempotent kicks followed by convergence
// polling: they re-read the running set every pollInterval until the
// machine appears or disappears. There is no deadline — a machine
// that never transitions keeps the caller waiting, bounded only by
// the supervisor's own behavior and context cancellation.

func (m *Manager) isRunning(ctx context.Context, id string) (bool, error) {
	running, err := m.sup.ListRunning(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(running, id), nil
}

func (m *Manager) awaitRunning(ctx context.Context, id string, want bool) error {
	return clock.WaitUntil(ctx, m.clock, pollInterval, 0,
		func(ctx context.Context) (bool, error) {
			running, err := m.isRunning(ctx, id)
			if err != nil {
				return false, err
			}
			return running == want, nil
		})
}

// Start brings a machine up and blocks until the supervisor lists it
// as running. Starting a running machine only waits.
func (m *Manager) Start(ctx context.Context, id string) error {
	running, err := m.isRunning(ctx, id)
	if err != nil {
		return err
	}
	if !running {
		if err := m.sup.Start(ctx, id); err != nil {
			return err
		}
		m.logger.Info("starting machine", "machine", id)
	}
	return m.awaitRunning(ctx, id, true)
}

// Stop shuts a machine down and blocks until the supervisor no longer
// lists it. The default is a clean poweroff through the machine's own
// init; kill terminates it immediately instead. Stopping a stopped
// machine is a no-op.
func (m *Manager) Stop(ctx context.Context, id string, kill bool) error {
	running, err := m.isRunning(ctx, id)
	if err != nil {
		return err
	}
	if running {
		stop := m.sup.Poweroff
		if kill {
			stop = m.sup.Terminate
		}
		if err := stop(ctx, id); err != nil {
			return err
		}
		m.logger.Info("stopping machine", "machine", id, "kill", kill)
	}
	return m.awaitRunning(ctx, id, false)
}

// Restart is Stop then Start.
func (m *Manager) Restart(ctx context.Context, id string, kill bool) error {
	if err := m.Stop(ctx, id, kill); err != nil {
		return err
	}
	return m.Start(ctx, id)
}
