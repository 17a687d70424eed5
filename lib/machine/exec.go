// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"context"
	"strings"
)

// ExecResult is one machine's outcome from a command fan-out. A
// non-zero ExitCode is the command's own status; Err is set only when
// the command could not be run at all.
type ExecResult struct {
	Machine  string
	Output   string
	ExitCode int
	Err      error
}

// Exec runs a command inside one machine, or inside every running
// machine when target is "all". Failures never abort the fan-out:
// each machine's result is collected and reported, and the caller
// decides what a partial failure means for the exit status.
//
// The error return covers target resolution only. For a single
// target, a stopped machine surfaces through that machine's result,
// not here — the supervisor's own refusal is the clearest report.
func (m *Manager) Exec(ctx context.Context, registry *Registry, target string, argv []string) ([]ExecResult, error) {
	var targets []string
	if target == "all" {
		for _, record := range registry.Records {
			if record.Running {
				targets = append(targets, record.ID)
			}
		}
	} else {
		record, ok := registry.Lookup(target)
		if !ok {
			return nil, &NotFoundError{Name: target}
		}
		targets = []string{record.ID}
	}

	results := make([]ExecResult, 0, len(targets))
	for _, id := range targets {
		output, code, err := m.sup.RunIn(ctx, id, argv)
		results = append(results, ExecResult{
			Machine:  id,
			Output:   output,
			ExitCode: code,
			Err:      err,
		})
	}
	return results, nil
}

// PrefixLines prepends "<id>: " to every line, so interleaved fan-out
// output stays attributable. The trailing newline state is preserved.
func PrefixLines(id, text string) string {
	if text == "" {
		return ""
	}
	trailing := strings.HasSuffix(text, "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = id + ": " + line
	}
	joined := strings.Join(lines, "\n")
	if trailing {
		joined += "\n"
	}
	return joined
}
