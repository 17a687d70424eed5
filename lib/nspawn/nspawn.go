// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package nspawn generates the systemd configuration that turns a
// machine subtree into a bootable container: the per-machine settings
// file under /etc/systemd/nspawn (boot mode, network bridge
// attachment, bind mounts) and, when the machine's profile sets
// resource limits, a service drop-in for its nspawn unit. Limits are
// unit properties, not settings-file keys, which is why they land in
// a drop-in rather than the .nspawn file.
//
// Profiles are JSONC documents (comments and trailing commas allowed)
// loaded from the configured profile directory.
package nspawn

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hutch-systems/hutch/lib/machined"
)

// dropinFile is the name of the drop-in inside the unit's .d
// directory. The 50- prefix leaves room for local overrides on both
// sides of it.
const dropinFile = "50-hutch.conf"

// ConfigPath returns the settings file path for a machine,
// e.g. /etc/systemd/nspawn/12.nspawn.
func ConfigPath(nspawnDir, id string) string {
	return filepath.Join(nspawnDir, id+".nspawn")
}

// DropinDir returns the unit drop-in directory for a machine,
// e.g. /etc/systemd/system/systemd-nspawn@12.service.d.
func DropinDir(dropinRoot, id string) string {
	return filepath.Join(dropinRoot, machined.UnitName(id)+".d")
}

// DropinPath returns the resource-limit drop-in file for a machine.
func DropinPath(dropinRoot, id string) string {
	return filepath.Join(DropinDir(dropinRoot, id), dropinFile)
}

// RenderSettings returns the .nspawn file content for a machine:
// boot the subtree's init, attach to the host bridge, and mount the
// profile's extra binds.
func RenderSettings(bridge string, profile *Profile) string {
	if profile == nil {
		profile = DefaultProfile()
	}

	var builder strings.Builder
	builder.WriteString("[Exec]\n")
	builder.WriteString("Boot=on\n")
	builder.WriteString("\n[Network]\n")
	builder.WriteString("Bridge=" + bridge + "\n")
	if len(profile.Binds) > 0 {
		builder.WriteString("\n[Files]\n")
		for _, bind := range profile.Binds {
			builder.WriteString("Bind=" + bind + "\n")
		}
	}
	return builder.String()
}

// RenderDropin returns the unit drop-in content for a machine's
// resource limits, or "" when the profile sets none (no drop-in is
// written in that case).
func RenderDropin(profile *Profile) string {
	if profile == nil || !profile.HasLimits() {
		return ""
	}

	var builder strings.Builder
	builder.WriteString("[Service]\n")
	if profile.MemoryMax != "" {
		builder.WriteString("MemoryMax=" + profile.MemoryMax + "\n")
	}
	if profile.CPUQuota != "" {
		builder.WriteString("CPUQuota=" + profile.CPUQuota + "\n")
	}
	if profile.TasksMax > 0 {
		fmt.Fprintf(&builder, "TasksMax=%d\n", profile.TasksMax)
	}
	return builder.String()
}

// WriteConfig writes a machine's settings file and, if the profile
// sets limits, its unit drop-in. A leftover drop-in from a previous
// profile without a successor is removed, so regenerating config
// always converges on the profile.
func WriteConfig(nspawnDir, dropinRoot, bridge, id string, profile *Profile) error {
	settings := RenderSettings(bridge, profile)
	if err := os.WriteFile(ConfigPath(nspawnDir, id), []byte(settings), 0644); err != nil {
		return fmt.Errorf("writing nspawn settings: %w", err)
	}

	dropin := RenderDropin(profile)
	if dropin == "" {
		if err := os.RemoveAll(DropinDir(dropinRoot, id)); err != nil {
			return fmt.Errorf("removing stale drop-in: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(DropinDir(dropinRoot, id), 0755); err != nil {
		return fmt.Errorf("creating drop-in directory: %w", err)
	}
	if err := os.WriteFile(DropinPath(dropinRoot, id), []byte(dropin), 0644); err != nil {
		return fmt.Errorf("writing drop-in: %w", err)
	}
	return nil
}

// MoveConfig renames a machine's settings file and drop-in directory
// to a new identifier. Missing artifacts are skipped — a machine
// without limits has no drop-in, and a move must not abort halfway
// through a rename whose dataset has already moved.
func MoveConfig(nspawnDir, dropinRoot, oldID, newID string) error {
	err := os.Rename(ConfigPath(nspawnDir, oldID), ConfigPath(nspawnDir, newID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("moving nspawn settings: %w", err)
	}

	err = os.Rename(DropinDir(dropinRoot, oldID), DropinDir(dropinRoot, newID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("moving drop-in directory: %w", err)
	}
	return nil
}

// RemoveConfig removes a machine's settings file and drop-in
// directory. Already-absent artifacts are fine: removal is cleanup,
// and the artifacts being gone is the desired state.
func RemoveConfig(nspawnDir, dropinRoot, id string) error {
	if err := os.Remove(ConfigPath(nspawnDir, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing nspawn settings: %w", err)
	}
	if err := os.RemoveAll(DropinDir(dropinRoot, id)); err != nil {
		return fmt.Errorf("removing drop-in directory: %w", err)
	}
	return nil
}
