// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hutch-systems/hutch/lib/nspawn"
)

// Operations validate every precondition against the loaded registry
// before the first mutating collaborator call, so a refused operation
// leaves host state untouched. There is no rollback after that point:
// a failure mid-sequence leaves a partially constructed machine for
// the operator to clean up, and the error says which step died.

// checkNewID validates an identifier that is about to come into
// existence: canonical, in range, not an existing machine, not a
// claimed alias.
func checkNewID(registry *Registry, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	record, taken := registry.Lookup(id)
	if !taken {
		return nil
	}
	if record.ID == id {
		return &ConflictError{Reason: fmt.Sprintf("machine %s already exists", id)}
	}
	return &ConflictError{Reason: fmt.Sprintf(
		"%q is already in use as an alias for machine %s", id, record.ID)}
}

// Create brings a new machine up: dataset, bootstrapped root
// filesystem, network and supervisor configuration, managed-set link,
// then enable, first boot, and in-machine timezone/locale setup. On
// return the machine exists, is boot-enabled, and is running.
func (m *Manager) Create(ctx context.Context, registry *Registry, id string, profile *nspawn.Profile) error {
	if err := checkNewID(registry, id); err != nil {
		return err
	}

	if err := m.pool.Create(ctx, id, m.cfg.Storage.Recordsize); err != nil {
		return err
	}

	argv := append(append([]string{}, m.cfg.Bootstrap.Command...), m.subtree(id))
	m.logger.Info("bootstrapping base system", "machine", id, "target", m.subtree(id))
	if err := m.bootstrap(ctx, argv); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	if err := m.configureMachine(id, profile); err != nil {
		return err
	}
	if err := m.sup.Enable(ctx, id); err != nil {
		return err
	}

	if err := m.Start(ctx, id); err != nil {
		return err
	}

	// Give init a moment to bring up dbus and friends before running
	// commands inside.
	m.clock.Sleep(settleDelay)
	return m.configureInside(ctx, id)
}

// configureInside applies the configured timezone and locale inside a
// freshly booted machine. Both writes are plain files so they work
// before the machine has any management daemons running.
func (m *Manager) configureInside(ctx context.Context, id string) error {
	steps := [][]string{
		{"ln", "-snf", "/usr/share/zoneinfo/" + m.cfg.Bootstrap.Timezone, "/etc/localtime"},
		{"sh", "-c", "echo 'LANG=" + m.cfg.Bootstrap.Locale + "' > /etc/locale.conf"},
	}
	for _, argv := range steps {
		output, code, err := m.sup.RunIn(ctx, id, argv)
		if err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("%s in machine %s: exit status %d: %s",
				argv[0], id, code, strings.TrimSpace(output))
		}
	}
	return nil
}

// Destroy removes a machine: managed-set link, supervisor
// configuration, then the dataset recursively. The operator
// confirmation happens in the command layer before this runs; by the
// time Destroy is called the decision is made.
func (m *Manager) Destroy(ctx context.Context, registry *Registry, id string) error {
	record, ok := registry.Lookup(id)
	if !ok {
		return &NotFoundError{Name: id}
	}
	if record.Running {
		return &ConflictError{Reason: fmt.Sprintf("machine %s is running; stop it first", id)}
	}
	if record.Enabled {
		return &ConflictError{Reason: fmt.Sprintf("machine %s is enabled; disable it first", id)}
	}

	if err := os.Remove(m.machinesLink(record.ID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlinking %s from the managed set: %w", record.ID, err)
	}
	if err := nspawn.RemoveConfig(m.cfg.Supervisor.NspawnDir, m.cfg.Supervisor.DropinDir, record.ID); err != nil {
		return err
	}
	return m.pool.DestroyRecursive(ctx, record.ID)
}

// Rename moves a machine to a new identifier: dataset rename,
// supervisor config move, managed-set relink, and a network-config
// rewrite (the address embeds the identifier). A boot-enabled machine
// is disabled under the old identifier first and re-enabled under the
// new one last, so the activation link never points at a unit whose
// machine is mid-rename.
func (m *Manager) Rename(ctx context.Context, registry *Registry, oldID, newID string) error {
	record, ok := registry.Lookup(oldID)
	if !ok {
		return &NotFoundError{Name: oldID}
	}
	if record.Running {
		return &ConflictError{Reason: fmt.Sprintf("machine %s is running; stop it first", record.ID)}
	}
	// The new identifier gets the full create-grade check: the
	// address rewrite at the end derives from it, and discovering an
	// unusable identifier there would leave the dataset already
	// renamed.
	if err := checkNewID(registry, newID); err != nil {
		return err
	}

	wasEnabled := record.Enabled
	if wasEnabled {
		if err := m.sup.Disable(ctx, record.ID); err != nil {
			return err
		}
	}

	if err := m.pool.Rename(ctx, record.ID, newID); err != nil {
		return err
	}
	if err := nspawn.MoveConfig(m.cfg.Supervisor.NspawnDir, m.cfg.Supervisor.DropinDir,
		record.ID, newID); err != nil {
		return err
	}

	if err := os.Remove(m.machinesLink(record.ID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlinking %s from the managed set: %w", record.ID, err)
	}
	if err := m.linkSubtree(newID); err != nil {
		return err
	}
	if err := m.writeNetworkConfig(newID); err != nil {
		return err
	}

	if wasEnabled {
		return m.sup.Enable(ctx, newID)
	}
	return nil
}

// Clone duplicates a machine's data into a new identifier via
// snapshot and replication, then regenerates the new machine's
// configuration independently. The alias and hostname carry over with
// a "cloned-" prefix when the source had them; boot-enablement
// propagates. Clones never start automatically.
func (m *Manager) Clone(ctx context.Context, registry *Registry, oldID, newID string, profile *nspawn.Profile) error {
	record, ok := registry.Lookup(oldID)
	if !ok {
		return &NotFoundError{Name: oldID}
	}
	if record.Running {
		return &ConflictError{Reason: fmt.Sprintf("machine %s is running; stop it first", record.ID)}
	}
	if err := checkNewID(registry, newID); err != nil {
		return err
	}

	label := m.snapshotLabel("clone")
	if err := m.pool.Snapshot(ctx, record.ID, label); err != nil {
		return err
	}
	if err := m.pool.Replicate(ctx, record.ID, label, newID, false); err != nil {
		return err
	}
	// Replication leaves the snapshot on both sides; neither is
	// needed once the data is across.
	if err := m.pool.DestroySnapshot(ctx, record.ID, label); err != nil {
		return err
	}
	if err := m.pool.DestroySnapshot(ctx, newID, label); err != nil {
		return err
	}

	if err := m.configureMachine(newID, profile); err != nil {
		return err
	}

	// The replicated subtree carries the source's alias file, and an
	// alias names exactly one machine. Drop the copy before deciding
	// what the clone's own alias is.
	if err := os.Remove(m.aliasPath(newID)); err != nil && !os.IsNotExist(err) {
		return err
	}

	uid, gid, err := m.subtreeOwner(newID)
	if err != nil {
		return err
	}
	if record.Alias != "" {
		clonedAlias := "cloned-" + record.Alias
		if _, taken := registry.Lookup(clonedAlias); taken {
			// Writing it anyway would poison the next registry load
			// with a fatal collision.
			m.logger.Warn("skipping alias for clone, name already taken",
				"machine", newID, "alias", clonedAlias)
		} else if err := writeOwnedFile(m.aliasPath(newID),
			[]byte(clonedAlias+"\n"), uid, gid, 0644); err != nil {
			return err
		}
	}
	if record.Hostname != "" {
		if err := writeOwnedFile(m.hostnamePath(newID),
			[]byte("cloned-"+record.Hostname+"\n"), uid, gid, 0644); err != nil {
			return err
		}
	}

	if record.Enabled {
		return m.sup.Enable(ctx, newID)
	}
	return nil
}
