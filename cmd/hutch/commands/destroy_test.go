// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"strings"
	"testing"

	"github.com/hutch-systems/hutch/lib/machine"
)

func TestConfirmDestroy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "exact", input: "DESTROY\n", want: true},
		{name: "crlf", input: "DESTROY\r\n", want: true},
		{name: "eof without newline", input: "DESTROY", want: true},
		{name: "lowercase", input: "destroy\n", want: false},
		{name: "leading space", input: " DESTROY\n", want: false},
		{name: "empty line", input: "\n", want: false},
		{name: "yes", input: "yes\n", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out strings.Builder
			record := machine.Record{ID: "12"}
			confirmed, err := confirmDestroy(strings.NewReader(tt.input), &out, record)
			if err != nil {
				t.Fatalf("confirmDestroy() error: %v", err)
			}
			if confirmed != tt.want {
				t.Errorf("confirmDestroy(%q) = %v, want %v", tt.input, confirmed, tt.want)
			}
			if !strings.Contains(out.String(), "machine 12") {
				t.Errorf("prompt %q does not name the machine", out.String())
			}
		})
	}
}

func TestConfirmDestroyShowsAlias(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	record := machine.Record{ID: "12", Alias: "web"}
	if _, err := confirmDestroy(strings.NewReader("DESTROY\n"), &out, record); err != nil {
		t.Fatalf("confirmDestroy() error: %v", err)
	}
	if !strings.Contains(out.String(), `alias "web"`) {
		t.Errorf("prompt %q does not show the alias", out.String())
	}
}

func TestConfirmDestroyEmptyInputErrors(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	record := machine.Record{ID: "12"}
	_, err := confirmDestroy(strings.NewReader(""), &out, record)
	if err == nil {
		t.Fatal("confirmDestroy() on closed stdin: want error, got nil")
	}
}
