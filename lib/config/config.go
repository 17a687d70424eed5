// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for hutch.
//
// Configuration is loaded from a single file specified by either the
// HUTCH_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. Every field has a working default, so
// running without a config file at all is also supported: commands
// fall back to [Default] when HUTCH_CONFIG is unset and no --config
// flag is given.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for hutch.
type Config struct {
	// Storage configures the ZFS layout backing machine subtrees.
	Storage StorageConfig `yaml:"storage"`

	// Network configures bridge networking for machines.
	Network NetworkConfig `yaml:"network"`

	// Supervisor configures the systemd integration points.
	Supervisor SupervisorConfig `yaml:"supervisor"`

	// Bootstrap configures how new machine subtrees are populated.
	Bootstrap BootstrapConfig `yaml:"bootstrap"`

	// Binaries pins the external utilities hutch invokes.
	Binaries BinariesConfig `yaml:"binaries"`

	// JournalPath is the append-only operation journal file.
	JournalPath string `yaml:"journal_path"`

	// ProfileDir holds machine profile definitions (*.jsonc).
	ProfileDir string `yaml:"profile_dir"`
}

// StorageConfig configures the ZFS layout.
type StorageConfig struct {
	// ParentDataset is the dataset whose immediate children are the
	// machine volumes, e.g. "tank/machines". Its mountpoint property
	// determines where subtrees appear on the host.
	ParentDataset string `yaml:"parent_dataset"`

	// Mountpoint is the host directory the parent dataset is mounted
	// at. Machine subtrees live at <mountpoint>/<id>.
	Mountpoint string `yaml:"mountpoint"`

	// Recordsize is applied to newly created machine volumes.
	Recordsize string `yaml:"recordsize"`
}

// NetworkConfig configures bridge networking.
type NetworkConfig struct {
	// Bridge is the host bridge interface machines attach to.
	Bridge string `yaml:"bridge"`

	// BridgeConfigFile is the systemd-networkd unit declaring the
	// bridge address. Its first Address= line supplies the gateway
	// that machine addresses are derived from.
	BridgeConfigFile string `yaml:"bridge_config_file"`
}

// SupervisorConfig configures the systemd integration points.
type SupervisorConfig struct {
	// MachinesDir is the directory the machine manager resolves
	// machine roots through. hutch links each subtree here.
	MachinesDir string `yaml:"machines_dir"`

	// NspawnDir holds per-machine container settings files.
	NspawnDir string `yaml:"nspawn_dir"`

	// WantsDir is the target wants directory whose links mark
	// machines as boot-enabled.
	WantsDir string `yaml:"wants_dir"`

	// DropinDir is where per-machine service drop-ins live. Profile
	// resource limits are unit properties, so they land here rather
	// than in the settings file.
	DropinDir string `yaml:"dropin_dir"`
}

// BootstrapConfig configures base system installation for new machines.
type BootstrapConfig struct {
	// Command is the argv run to install a base system. The target
	// directory is appended as the final argument.
	Command []string `yaml:"command"`

	// Timezone is applied inside freshly created machines.
	Timezone string `yaml:"timezone"`

	// Locale is applied inside freshly created machines.
	Locale string `yaml:"locale"`
}

// BinariesConfig pins the external utilities hutch invokes. Relative
// names are resolved through PATH; absolute paths are used as-is.
type BinariesConfig struct {
	Zfs        string `yaml:"zfs"`
	Machinectl string `yaml:"machinectl"`
	Systemctl  string `yaml:"systemctl"`
	SystemdRun string `yaml:"systemd_run"`
}

// Default returns the default configuration. These values describe the
// conventional single-pool layout and work unmodified on a host set up
// with a "tank" pool and a br0 bridge.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			ParentDataset: "tank/machines",
			Mountpoint:    "/tank/machines",
			Recordsize:    "16K",
		},
		Network: NetworkConfig{
			Bridge:           "br0",
			BridgeConfigFile: "/etc/systemd/network/br0.network",
		},
		Supervisor: SupervisorConfig{
			MachinesDir: "/var/lib/machines",
			NspawnDir:   "/etc/systemd/nspawn",
			WantsDir:    "/etc/systemd/system/machines.target.wants",
			DropinDir:   "/etc/systemd/system",
		},
		Bootstrap: BootstrapConfig{
			Command:  []string{"debootstrap", "--include=systemd,dbus", "stable"},
			Timezone: "UTC",
			Locale:   "en_US.UTF-8",
		},
		Binaries: BinariesConfig{
			Zfs:        "zfs",
			Machinectl: "machinectl",
			Systemctl:  "systemctl",
			SystemdRun: "systemd-run",
		},
		JournalPath: "/var/log/hutch/operations.cbor",
		ProfileDir:  "/etc/hutch/profiles",
	}
}

// Load loads configuration from the HUTCH_CONFIG environment variable,
// falling back to [Default] when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("HUTCH_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Storage.Mountpoint = expandVars(c.Storage.Mountpoint, vars)
	c.Network.BridgeConfigFile = expandVars(c.Network.BridgeConfigFile, vars)
	c.Supervisor.MachinesDir = expandVars(c.Supervisor.MachinesDir, vars)
	c.Supervisor.NspawnDir = expandVars(c.Supervisor.NspawnDir, vars)
	c.Supervisor.WantsDir = expandVars(c.Supervisor.WantsDir, vars)
	c.Supervisor.DropinDir = expandVars(c.Supervisor.DropinDir, vars)
	c.JournalPath = expandVars(c.JournalPath, vars)
	c.ProfileDir = expandVars(c.ProfileDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var recordsizePattern = regexp.MustCompile(`^[0-9]+[KMG]?$`)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Storage.ParentDataset == "" {
		errs = append(errs, fmt.Errorf("storage.parent_dataset is required"))
	} else if c.Storage.ParentDataset[0] == '/' {
		errs = append(errs, fmt.Errorf("storage.parent_dataset is a dataset name, not a path: %s", c.Storage.ParentDataset))
	}

	if !filepath.IsAbs(c.Storage.Mountpoint) {
		errs = append(errs, fmt.Errorf("storage.mountpoint must be absolute: %s", c.Storage.Mountpoint))
	}

	if c.Storage.Recordsize != "" && !recordsizePattern.MatchString(c.Storage.Recordsize) {
		errs = append(errs, fmt.Errorf("storage.recordsize is not a valid size: %s", c.Storage.Recordsize))
	}

	if c.Network.Bridge == "" {
		errs = append(errs, fmt.Errorf("network.bridge is required"))
	}
	if !filepath.IsAbs(c.Network.BridgeConfigFile) {
		errs = append(errs, fmt.Errorf("network.bridge_config_file must be absolute: %s", c.Network.BridgeConfigFile))
	}

	for name, dir := range map[string]string{
		"supervisor.machines_dir": c.Supervisor.MachinesDir,
		"supervisor.nspawn_dir":   c.Supervisor.NspawnDir,
		"supervisor.wants_dir":    c.Supervisor.WantsDir,
		"supervisor.dropin_dir":   c.Supervisor.DropinDir,
	} {
		if !filepath.IsAbs(dir) {
			errs = append(errs, fmt.Errorf("%s must be absolute: %s", name, dir))
		}
	}

	if len(c.Bootstrap.Command) == 0 {
		errs = append(errs, fmt.Errorf("bootstrap.command is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SubtreePath returns the host path of a machine's root subtree.
func (c *Config) SubtreePath(id string) string {
	return filepath.Join(c.Storage.Mountpoint, id)
}

// Dataset returns the ZFS dataset name for a machine.
func (c *Config) Dataset(id string) string {
	return c.Storage.ParentDataset + "/" + id
}

// BinaryPath resolves a configured binary. Absolute paths are verified
// to exist; bare names are resolved through PATH.
func BinaryPath(configured string) (string, error) {
	if filepath.IsAbs(configured) {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%s: %w", configured, err)
		}
		return configured, nil
	}
	path, err := exec.LookPath(configured)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", configured)
	}
	return path, nil
}
