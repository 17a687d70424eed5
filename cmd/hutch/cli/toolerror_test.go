// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestToolError_ErrorWithoutHint(t *testing.T) {
	err := Validation("identifier %q is out of range", "254")
	if err.Error() != `identifier "254" is out of range` {
		t.Errorf("Error() = %q, want %q", err.Error(), `identifier "254" is out of range`)
	}
}

func TestToolError_ErrorWithHint(t *testing.T) {
	err := NotFound("machine %q not found", "web").
		WithHint("Run 'hutch list' to see available machines.")

	want := "machine \"web\" not found\n\nRun 'hutch list' to see available machines."
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestToolError_WithHintReturnsReceiver(t *testing.T) {
	original := Validation("bad input")
	chained := original.WithHint("fix it")
	if original != chained {
		t.Error("WithHint should return the same pointer")
	}
}

func TestToolError_WithHintPreservesCategory(t *testing.T) {
	err := Conflict("machine 12 is running").
		WithHint("Stop it first with 'hutch stop 12'.")

	if err.Category != CategoryConflict {
		t.Errorf("Category = %q, want %q", err.Category, CategoryConflict)
	}
}

func TestToolError_HintSurvivesErrorsAs(t *testing.T) {
	inner := Validation("bad identifier").WithHint("identifiers are 1-253")
	wrapped := fmt.Errorf("create failed: %w", inner)

	var toolErr *ToolError
	if !errors.As(wrapped, &toolErr) {
		t.Fatal("errors.As should find ToolError in wrapped chain")
	}
	if toolErr.Hint != "identifiers are 1-253" {
		t.Errorf("Hint = %q after unwrap, want %q", toolErr.Hint, "identifiers are 1-253")
	}
}

func TestToolError_EmptyHintNotAppended(t *testing.T) {
	err := Internal("unexpected failure")
	if strings.Contains(err.Error(), "\n\n") {
		t.Error("empty hint should not add blank line to error message")
	}
}

func TestToolError_AllCategories(t *testing.T) {
	tests := []struct {
		name     string
		err      *ToolError
		category ErrorCategory
	}{
		{"Validation", Validation("bad"), CategoryValidation},
		{"NotFound", NotFound("missing"), CategoryNotFound},
		{"Forbidden", Forbidden("denied"), CategoryForbidden},
		{"Conflict", Conflict("duplicate"), CategoryConflict},
		{"Transient", Transient("busy"), CategoryTransient},
		{"Internal", Internal("bug"), CategoryInternal},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if test.err.Category != test.category {
				t.Errorf("Category = %q, want %q", test.err.Category, test.category)
			}
			// All constructors should support WithHint.
			hinted := test.err.WithHint("try again")
			if hinted.Hint != "try again" {
				t.Errorf("Hint = %q after WithHint, want %q", hinted.Hint, "try again")
			}
		})
	}
}

func TestErrorCategory_ExitCode(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		want     int
	}{
		{CategoryValidation, 2},
		{CategoryNotFound, 3},
		{CategoryForbidden, 4},
		{CategoryConflict, 5},
		{CategoryTransient, 6},
		{CategoryInternal, 1},
		{ErrorCategory("unknown"), 1},
	}
	for _, test := range tests {
		t.Run(string(test.category), func(t *testing.T) {
			if got := test.category.ExitCode(); got != test.want {
				t.Errorf("ExitCode() = %d, want %d", got, test.want)
			}
		})
	}
}
