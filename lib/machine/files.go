// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/hutch-systems/hutch/lib/netconf"
	"github.com/hutch-systems/hutch/lib/nspawn"
)

// Paths inside a machine's subtree. The alias, hostname, and network
// files live under the subtree deliberately: they travel with the
// dataset through rename, clone, and backup streams.

func (m *Manager) subtree(id string) string {
	return m.cfg.SubtreePath(id)
}

func (m *Manager) aliasPath(id string) string {
	return filepath.Join(m.subtree(id), "etc", "machine-alias")
}

func (m *Manager) hostnamePath(id string) string {
	return filepath.Join(m.subtree(id), "etc", "hostname")
}

func (m *Manager) networkPath(id string) string {
	return filepath.Join(m.subtree(id), "etc", "systemd", "network", "host0.network")
}

func (m *Manager) passwdPath(id string) string {
	return filepath.Join(m.subtree(id), "etc", "passwd")
}

func (m *Manager) sshDir(id string) string {
	return filepath.Join(m.subtree(id), "root", ".ssh")
}

// machinesLink is the managed-set symlink the supervisor resolves
// machine roots through.
func (m *Manager) machinesLink(id string) string {
	return filepath.Join(m.cfg.Supervisor.MachinesDir, id)
}

// readOptionalLine reads a single-line file, trimmed. A missing file
// is an empty value, not an error.
func readOptionalLine(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// subtreeOwner returns the uid/gid owning the subtree's passwd file.
// Files written into a subtree for the machine's own init to read
// take their ownership from this template, never from the invoking
// process.
func (m *Manager) subtreeOwner(id string) (uid, gid int, err error) {
	var stat unix.Stat_t
	if err := unix.Stat(m.passwdPath(id), &stat); err != nil {
		return 0, 0, fmt.Errorf("stat %s: %w", m.passwdPath(id), err)
	}
	return int(stat.Uid), int(stat.Gid), nil
}

// writeOwnedFile writes a file with explicit ownership and mode. The
// chmod after the write covers the overwrite case, where WriteFile
// leaves the existing mode untouched.
func writeOwnedFile(path string, data []byte, uid, gid int, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return err
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// linkSubtree points the managed-set link at the machine's subtree,
// replacing a stale link if one survives from an earlier life of the
// identifier.
func (m *Manager) linkSubtree(id string) error {
	link := m.machinesLink(id)
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale link %s: %w", link, err)
	}
	if err := os.Symlink(m.subtree(id), link); err != nil {
		return fmt.Errorf("linking %s into the managed set: %w", id, err)
	}
	return nil
}

// writeNetworkConfig derives the machine's address from the bridge
// gateway and writes the subtree's network file. The address embeds
// the identifier, which is why every operation that changes the
// identifier ends up here.
func (m *Manager) writeNetworkConfig(id string) error {
	gateway, err := netconf.Gateway(m.cfg.Network.BridgeConfigFile)
	if err != nil {
		return err
	}
	address, err := netconf.Derive(gateway, id)
	if err != nil {
		return err
	}

	uid, gid, err := m.subtreeOwner(id)
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.networkPath(id))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	content := netconf.Render(address, gateway)
	if err := writeOwnedFile(m.networkPath(id), []byte(content), uid, gid, 0644); err != nil {
		return err
	}

	m.logger.Debug("wrote network config", "machine", id, "address", address, "gateway", gateway)
	return nil
}

// configureMachine writes the host-side and subtree-side configuration
// a machine needs to boot: network file, supervisor settings (and the
// profile's limit drop-in), and the managed-set link. Create runs it
// after bootstrap; clone and import run it after the dataset lands.
func (m *Manager) configureMachine(id string, profile *nspawn.Profile) error {
	if err := m.writeNetworkConfig(id); err != nil {
		return err
	}
	if err := nspawn.WriteConfig(m.cfg.Supervisor.NspawnDir, m.cfg.Supervisor.DropinDir,
		m.cfg.Network.Bridge, id, profile); err != nil {
		return err
	}
	return m.linkSubtree(id)
}
