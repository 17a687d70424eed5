// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
)

// SetAlias writes a machine's alias file. The reserved word "all" is
// rejected (it addresses every machine in exec), as are numeric
// aliases and names already claimed elsewhere in the registry — an
// alias that collides would make the next registry load fatal, so the
// collision is refused at write time instead.
func (m *Manager) SetAlias(registry *Registry, id, alias string) error {
	record, ok := registry.Lookup(id)
	if !ok {
		return &NotFoundError{Name: id}
	}

	alias = strings.TrimSpace(alias)
	if alias == "" {
		return &ValidationError{Reason: "alias must not be empty"}
	}
	if alias == "all" {
		return &ValidationError{Reason: `"all" is reserved for addressing every machine`}
	}
	if strings.ContainsAny(alias, " \t") {
		return &ValidationError{Reason: fmt.Sprintf("alias %q must not contain whitespace", alias)}
	}
	if _, err := strconv.Atoi(alias); err == nil {
		return &ValidationError{Reason: fmt.Sprintf(
			"alias %q would shadow the machine identifier namespace", alias)}
	}
	if owner, taken := registry.Lookup(alias); taken && owner.ID != record.ID {
		return &ConflictError{Reason: fmt.Sprintf(
			"alias %q is already in use by machine %s", alias, owner.ID)}
	}

	if err := os.WriteFile(m.aliasPath(record.ID), []byte(alias+"\n"), 0644); err != nil {
		return err
	}
	m.logger.Info("set alias", "machine", record.ID, "alias", alias)
	return nil
}

// SetHostname updates a machine's hostname: live through the
// machine's own tooling when it is running, otherwise by writing the
// subtree's hostname file with the ownership template applied.
func (m *Manager) SetHostname(ctx context.Context, registry *Registry, id, hostname string) error {
	record, ok := registry.Lookup(id)
	if !ok {
		return &NotFoundError{Name: id}
	}
	if hostname == "" {
		return &ValidationError{Reason: "hostname must not be empty"}
	}

	if record.Running {
		output, code, err := m.sup.RunIn(ctx, record.ID,
			[]string{"hostnamectl", "set-hostname", hostname})
		if err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("hostnamectl in machine %s: exit status %d: %s",
				record.ID, code, strings.TrimSpace(output))
		}
		return nil
	}

	uid, gid, err := m.subtreeOwner(record.ID)
	if err != nil {
		return err
	}
	return writeOwnedFile(m.hostnamePath(record.ID), []byte(hostname+"\n"), uid, gid, 0644)
}

// SetAuthorizedKeys installs an SSH authorized_keys file for the
// machine's root user: every key in the given file is validated, then
// written under root/.ssh with restrictive permissions and the
// subtree's ownership template. Overwrites are idempotent.
func (m *Manager) SetAuthorizedKeys(registry *Registry, id, keyFile string) error {
	record, ok := registry.Lookup(id)
	if !ok {
		return &NotFoundError{Name: id}
	}

	data, err := os.ReadFile(keyFile)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("reading key file: %v", err)}
	}
	if err := validateAuthorizedKeys(data, keyFile); err != nil {
		return err
	}

	uid, gid, err := m.subtreeOwner(record.ID)
	if err != nil {
		return err
	}

	sshDir := m.sshDir(record.ID)
	if err := os.MkdirAll(sshDir, 0700); err != nil {
		return err
	}
	// MkdirAll leaves an existing directory alone, so converge
	// ownership and mode explicitly.
	if err := os.Chown(sshDir, uid, gid); err != nil {
		return fmt.Errorf("chown %s: %w", sshDir, err)
	}
	if err := os.Chmod(sshDir, 0700); err != nil {
		return fmt.Errorf("chmod %s: %w", sshDir, err)
	}

	target := filepath.Join(sshDir, "authorized_keys")
	if err := writeOwnedFile(target, data, uid, gid, 0600); err != nil {
		return err
	}
	m.logger.Info("installed authorized_keys", "machine", record.ID, "source", keyFile)
	return nil
}

// validateAuthorizedKeys checks that every non-comment line parses as
// an SSH public key. A typo'd key would otherwise be discovered at
// the first failed login.
func validateAuthorizedKeys(data []byte, source string) error {
	for number, line := range bytes.Split(data, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 || trimmed[0] == '#' {
			continue
		}
		if _, _, _, _, err := ssh.ParseAuthorizedKey(trimmed); err != nil {
			return &ValidationError{Reason: fmt.Sprintf(
				"%s line %d is not an SSH public key: %v", source, number+1, err)}
		}
	}
	return nil
}
