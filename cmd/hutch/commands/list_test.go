// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"strings"
	"testing"

	"github.com/hutch-systems/hutch/lib/machine"
)

func TestRenderTable(t *testing.T) {
	t.Parallel()

	records := []machine.Record{
		{
			ID:        "7",
			Alias:     "web",
			Hostname:  "web.example.net",
			Addresses: []string{"10.40.0.7", "fd00::7"},
			Enabled:   true,
			Running:   true,
			Used:      "1.2G",
			Avail:     "98.8G",
			Refer:     "850M",
		},
		{
			ID:    "12",
			Used:  "96K",
			Avail: "100G",
			Refer: "96K",
		},
	}

	var out strings.Builder
	if err := renderTable(&out, records); err != nil {
		t.Fatalf("renderTable() error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus two rows:\n%s", len(lines), out.String())
	}
	for _, column := range []string{"ID", "ALIAS", "STATE", "BOOT", "HOSTNAME", "ADDRESS", "USED", "AVAIL", "REFER"} {
		if !strings.Contains(lines[0], column) {
			t.Errorf("header %q missing column %s", lines[0], column)
		}
	}

	if !strings.Contains(lines[1], "running") || !strings.Contains(lines[1], "enabled") {
		t.Errorf("row %q should show running and enabled", lines[1])
	}
	if !strings.Contains(lines[1], "10.40.0.7") {
		t.Errorf("row %q should show the first address only", lines[1])
	}
	if strings.Contains(lines[1], "fd00::7") {
		t.Errorf("row %q shows more than the first address", lines[1])
	}

	if !strings.Contains(lines[2], "stopped") {
		t.Errorf("row %q should show stopped", lines[2])
	}
	if want := 4; strings.Count(lines[2], "-") < want {
		// Alias, boot, hostname, and address are all unset.
		t.Errorf("row %q should render %d dashes for empty fields", lines[2], want)
	}
}

func TestOrDash(t *testing.T) {
	t.Parallel()

	if got := orDash(""); got != "-" {
		t.Errorf("orDash(%q) = %q, want -", "", got)
	}
	if got := orDash("web"); got != "web" {
		t.Errorf("orDash(%q) = %q, want web", "web", got)
	}
}
