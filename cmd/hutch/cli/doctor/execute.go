// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
)

// IsRoot returns true if the current process has effective UID 0.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// ExecuteFixes runs the fix action for each fixable failure, updating
// results in place. In dry-run mode, no fixes are executed and an empty
// Outcome is returned.
//
// Elevated fixes (Result.Elevated == true) are skipped when the process
// is not running as root — they are counted in Outcome.ElevatedSkipped.
func ExecuteFixes(ctx context.Context, results []Result, dryRun bool) Outcome {
	if dryRun {
		return Outcome{}
	}

	var outcome Outcome
	root := IsRoot()

	for i := range results {
		if results[i].Status != StatusFail || results[i].fix == nil {
			continue
		}
		if results[i].Elevated && !root {
			outcome.ElevatedSkipped++
			continue
		}
		if err := results[i].fix(ctx); err != nil {
			if isPermissionDenied(err) {
				outcome.PermissionDenied = true
				results[i].Message = fmt.Sprintf("%s (insufficient permissions)", results[i].Message)
			} else {
				results[i].Message = fmt.Sprintf("%s (fix failed: %v)", results[i].Message, err)
			}
		} else {
			results[i].Status = StatusFixed
			outcome.FixedCount++
		}
	}

	return outcome
}

// isPermissionDenied returns true if err wraps EPERM or EACCES.
func isPermissionDenied(err error) bool {
	return errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES)
}

// BuildJSON builds the JSON output struct from results and outcome
// metadata.
func BuildJSON(results []Result, dryRun bool, outcome Outcome) JSONOutput {
	anyFailed := false
	for _, result := range results {
		if result.Status == StatusFail {
			anyFailed = true
			break
		}
	}
	return JSONOutput{
		Checks:           results,
		OK:               !anyFailed,
		DryRun:           dryRun,
		PermissionDenied: outcome.PermissionDenied,
		ElevatedSkipped:  outcome.ElevatedSkipped,
	}
}

// MarkRepaired updates results that now pass but were failing in a
// previous iteration — these were repaired by a fix even if they
// didn't directly carry the fix closure. Call this after the final
// iteration with the set of names that failed in any earlier iteration.
func MarkRepaired(results []Result, repairedNames map[string]bool) {
	for i := range results {
		if results[i].Status == StatusPass && repairedNames[results[i].Name] {
			results[i].Status = StatusFixed
		}
	}
}
