// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package nspawn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// Profile declares machine policy: resource limits rendered into the
// unit drop-in and extra bind mounts rendered into the settings file.
// Profiles live as <name>.jsonc files in the configured profile
// directory.
type Profile struct {
	// MemoryMax caps the machine's memory. systemd size syntax:
	// a byte count with optional K/M/G/T suffix, or "infinity".
	MemoryMax string `json:"memory_max,omitempty"`

	// CPUQuota caps CPU time as a percentage of one CPU, e.g. "200%"
	// for two full CPUs worth.
	CPUQuota string `json:"cpu_quota,omitempty"`

	// TasksMax caps the number of tasks (processes and threads).
	TasksMax int `json:"tasks_max,omitempty"`

	// Binds are extra bind mounts in systemd syntax: "/path" for the
	// same path on both sides, or "/host:/container" with an optional
	// ":options" suffix.
	Binds []string `json:"binds,omitempty"`
}

// DefaultProfile returns the profile used when create is given none:
// no limits, no extra binds.
func DefaultProfile() *Profile {
	return &Profile{}
}

// HasLimits reports whether the profile sets any resource limit,
// i.e. whether a unit drop-in is needed at all.
func (p *Profile) HasLimits() bool {
	return p.MemoryMax != "" || p.CPUQuota != "" || p.TasksMax > 0
}

var (
	profileNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	memoryPattern      = regexp.MustCompile(`^([0-9]+[KMGT]?|infinity)$`)
	quotaPattern       = regexp.MustCompile(`^[0-9]+%$`)
)

// LoadProfile reads and validates <dir>/<name>.jsonc. The name is
// restricted to lowercase letters, digits, and hyphens so a profile
// flag can never escape the profile directory.
func LoadProfile(dir, name string) (*Profile, error) {
	if !profileNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid profile name %q", name)
	}

	path := filepath.Join(dir, name+".jsonc")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %q: %w", name, err)
	}

	profile, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return profile, nil
}

// ParseProfile strips JSONC comments and trailing commas from data,
// unmarshals the result, and validates it. Unknown fields are
// rejected: a typo in a limit key must not silently produce an
// unlimited machine.
func ParseProfile(data []byte) (*Profile, error) {
	stripped := jsonc.ToJSON(data)

	decoder := json.NewDecoder(bytes.NewReader(stripped))
	decoder.DisallowUnknownFields()

	var profile Profile
	if err := decoder.Decode(&profile); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Validate format-checks every set field. Limits pass through to
// systemd verbatim, so catching a malformed value here is the
// difference between a clear error and a machine that fails to start.
func (p *Profile) Validate() error {
	var errs []error

	if p.MemoryMax != "" && !memoryPattern.MatchString(p.MemoryMax) {
		errs = append(errs, fmt.Errorf("memory_max %q is not a size (want e.g. \"4G\" or \"infinity\")", p.MemoryMax))
	}
	if p.CPUQuota != "" && !quotaPattern.MatchString(p.CPUQuota) {
		errs = append(errs, fmt.Errorf("cpu_quota %q is not a percentage (want e.g. \"200%%\")", p.CPUQuota))
	}
	if p.TasksMax < 0 {
		errs = append(errs, fmt.Errorf("tasks_max must not be negative: %d", p.TasksMax))
	}

	for _, bind := range p.Binds {
		parts := strings.Split(bind, ":")
		if len(parts) > 3 {
			errs = append(errs, fmt.Errorf("bind %q has too many colon-separated parts", bind))
			continue
		}
		// Source and destination must be absolute; the optional third
		// part is a mount-option list and not a path.
		pathParts := parts
		if len(pathParts) == 3 {
			pathParts = parts[:2]
		}
		for _, part := range pathParts {
			if !filepath.IsAbs(part) {
				errs = append(errs, fmt.Errorf("bind %q: %q is not an absolute path", bind, part))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
