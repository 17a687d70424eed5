// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package machined provides typed access to the systemd machine
// manager for container supervision. Machines run as
// systemd-nspawn@<id>.service units: machinectl talks to
// systemd-machined for live operations (list, start, poweroff,
// terminate, shell), systemctl maintains the boot-time activation
// link under machines.target.wants, and systemd-run executes commands
// inside a running machine.
//
// All operations go through Manager, which carries the configured
// binary paths and the activation-link directory. Stop-path
// operations tolerate "No machine known" failures — during shutdown
// and cleanup the machine being already gone is the desired state,
// not an error.
package machined

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner executes one external command with the given output streams.
// Tests substitute a fake Runner to script supervisor behavior without
// systemd. A completed command with non-zero status is reported as
// *ExitError; any other error means the command could not run at all.
type Runner func(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error

// ExitError reports a command that ran to completion with a non-zero
// status. The production Runner converts exec.ExitError into this
// type so that fake Runners can produce exit statuses too.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// execRunner is the production Runner.
func execRunner(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	command := exec.CommandContext(ctx, name, args...)
	command.Stdout = stdout
	command.Stderr = stderr

	if err := command.Run(); err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return &ExitError{Code: exitError.ExitCode()}
		}
		return err
	}
	return nil
}

// Manager wraps the systemd machine manager utilities. All operations
// name machines by their identifier; unit names and activation-link
// paths are derived internally so callers cannot address units outside
// the nspawn service template.
type Manager struct {
	machinectl string
	systemctl  string
	systemdRun string
	wantsDir   string
	runner     Runner
}

// New returns a Manager executing the given binaries, maintaining
// activation links under wantsDir
// (e.g. /etc/systemd/system/machines.target.wants).
func New(machinectl, systemctl, systemdRun, wantsDir string) *Manager {
	return NewWithRunner(machinectl, systemctl, systemdRun, wantsDir, execRunner)
}

// NewWithRunner is New with a substitute Runner. Tests use this to
// script utility behavior.
func NewWithRunner(machinectl, systemctl, systemdRun, wantsDir string, runner Runner) *Manager {
	return &Manager{
		machinectl: machinectl,
		systemctl:  systemctl,
		systemdRun: systemdRun,
		wantsDir:   wantsDir,
		runner:     runner,
	}
}

// UnitName returns the nspawn service unit for a machine identifier,
// e.g. "systemd-nspawn@12.service".
func UnitName(id string) string {
	return "systemd-nspawn@" + id + ".service"
}

// MachineFromUnit extracts the machine identifier from an nspawn
// service unit name. Returns ok=false for units outside the nspawn
// template, which lets directory scans skip foreign links.
func MachineFromUnit(unit string) (string, bool) {
	rest, found := strings.CutPrefix(unit, "systemd-nspawn@")
	if !found {
		return "", false
	}
	id, found := strings.CutSuffix(rest, ".service")
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// LinkPath returns the activation-link path whose existence marks a
// machine as boot-enabled.
func (m *Manager) LinkPath(id string) string {
	return filepath.Join(m.wantsDir, UnitName(id))
}

// run executes a command capturing stdout, and wraps failures with
// the command line and trimmed stderr, so errors read
// "machinectl poweroff 12: exit status 1 (Access denied)".
func (m *Manager) run(ctx context.Context, name string, args ...string) (stdout string, stderrText string, err error) {
	var outBuffer, errBuffer bytes.Buffer
	runErr := m.runner(ctx, &outBuffer, &errBuffer, name, args...)
	stderrText = strings.TrimSpace(errBuffer.String())
	if runErr != nil {
		if stderrText == "" {
			return outBuffer.String(), stderrText, fmt.Errorf("%s %s: %w",
				filepath.Base(name), strings.Join(args, " "), runErr)
		}
		return outBuffer.String(), stderrText, fmt.Errorf("%s %s: %w (%s)",
			filepath.Base(name), strings.Join(args, " "), runErr, stderrText)
	}
	return outBuffer.String(), stderrText, nil
}

// ListRunning returns the identifiers of machines currently known to
// systemd-machined, i.e. the running set. Order follows machinectl's
// output; callers sort.
func (m *Manager) ListRunning(ctx context.Context) ([]string, error) {
	output, _, err := m.run(ctx, m.machinectl, "list", "--no-legend", "--no-pager")
	if err != nil {
		return nil, err
	}

	var running []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		running = append(running, fields[0])
	}
	return running, nil
}

// Start requests machine startup via the nspawn service template.
// Startup is asynchronous — callers poll ListRunning to observe the
// machine actually appearing.
func (m *Manager) Start(ctx context.Context, id string) error {
	_, _, err := m.run(ctx, m.machinectl, "start", id)
	return err
}

// Poweroff requests a clean shutdown (the machine's init handles the
// poweroff signal). Returns nil if the machine was already gone —
// that is the desired state, not an error. Shutdown is asynchronous;
// callers poll ListRunning until the machine disappears.
func (m *Manager) Poweroff(ctx context.Context, id string) error {
	_, stderrText, err := m.run(ctx, m.machinectl, "poweroff", id)
	if err != nil && strings.Contains(stderrText, "No machine") {
		return nil
	}
	return err
}

// Terminate kills a machine without giving its init a chance to shut
// down cleanly. Same already-gone tolerance as Poweroff.
func (m *Manager) Terminate(ctx context.Context, id string) error {
	_, stderrText, err := m.run(ctx, m.machinectl, "terminate", id)
	if err != nil && strings.Contains(stderrText, "No machine") {
		return nil
	}
	return err
}

// Enable creates the boot-time activation link for a machine.
func (m *Manager) Enable(ctx context.Context, id string) error {
	_, _, err := m.run(ctx, m.systemctl, "enable", UnitName(id))
	return err
}

// Disable removes the boot-time activation link. Disabling an
// already-disabled machine exits zero, so no tolerance is needed.
func (m *Manager) Disable(ctx context.Context, id string) error {
	_, _, err := m.run(ctx, m.systemctl, "disable", UnitName(id))
	return err
}

// IsEnabled reports whether the activation link exists. This is a
// pure filesystem check — the link's existence is the enabled state,
// and consulting systemctl would only re-derive it.
func (m *Manager) IsEnabled(id string) bool {
	_, err := os.Stat(m.LinkPath(id))
	return err == nil
}

// Status returns machinectl's human-readable status for a machine.
// Both the output and the error are returned: status of a stopped
// machine fails, but the caller may still want whatever machinectl
// printed before it gave up.
func (m *Manager) Status(ctx context.Context, id string) (string, error) {
	output, _, err := m.run(ctx, m.machinectl, "status", id, "--no-pager")
	return output, err
}

// Show returns machinectl's key=value property dump for a machine.
func (m *Manager) Show(ctx context.Context, id string) (string, error) {
	output, _, err := m.run(ctx, m.machinectl, "show", id)
	return output, err
}

// ShellArgv returns the argument vector for an interactive shell in a
// machine. The caller replaces the current process image with it
// (unix.Exec) so the shell owns the terminal directly — no proxy
// process sits between the user and the container.
func (m *Manager) ShellArgv(id string) []string {
	return []string{m.machinectl, "shell", id}
}

// RunIn executes a command inside a running machine and returns its
// combined output and exit status. A non-zero exit is a result, not
// an error — fan-out execution across machines must report each
// machine's status rather than abort. The error return is reserved
// for failures to run the command at all.
func (m *Manager) RunIn(ctx context.Context, id string, argv []string) (string, int, error) {
	args := []string{"--machine=" + id, "--wait", "--pipe", "--quiet", "--"}
	args = append(args, argv...)

	// One buffer for both streams: interleaved output reads the way
	// it would in a terminal.
	var output bytes.Buffer
	err := m.runner(ctx, &output, &output, m.systemdRun, args...)
	if err != nil {
		var exitError *ExitError
		if errors.As(err, &exitError) {
			return output.String(), exitError.Code, nil
		}
		return output.String(), -1, fmt.Errorf("systemd-run --machine=%s: %w", id, err)
	}
	return output.String(), 0, nil
}
