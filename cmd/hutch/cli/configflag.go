// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/lib/config"
)

// ConfigFlag is an embeddable struct that adds the --config flag to a
// command's parameter struct via the [FlagBinder] mechanism. Commands
// call [ConfigFlag.Load] to obtain the effective configuration:
// the flag value when given, otherwise HUTCH_CONFIG, otherwise the
// built-in defaults.
type ConfigFlag struct {
	Path string
}

// AddFlags registers the --config flag, satisfying [FlagBinder].
func (c *ConfigFlag) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.Path, "config", "", "path to hutch.yaml (defaults to $HUTCH_CONFIG)")
}

// Load returns the validated effective configuration.
func (c *ConfigFlag) Load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if c.Path != "" {
		cfg, err = config.LoadFile(c.Path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
