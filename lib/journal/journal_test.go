// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hutch-systems/hutch/lib/clock"
)

func testJournal(t *testing.T) (*Journal, string, *clock.FakeClock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "operations.cbor")
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	logger := slog.New(slog.DiscardHandler)
	return New(path, clk, logger), path, clk
}

func TestAppendAndRead(t *testing.T) {
	journal, path, clk := testJournal(t)

	journal.Append("create", "12", map[string]string{"profile": "default"}, nil)
	clk.Advance(time.Minute)
	journal.Append("destroy", "12", nil, os.ErrPermission)

	records, err := Read(path, 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	first := records[0]
	if first.Operation != "create" || first.Machine != "12" {
		t.Errorf("first record = %q on %q, want create on 12", first.Operation, first.Machine)
	}
	if first.Detail["profile"] != "default" {
		t.Errorf("first.Detail[profile] = %q, want default", first.Detail["profile"])
	}
	if first.Outcome != OutcomeOK {
		t.Errorf("first.Outcome = %q, want %q", first.Outcome, OutcomeOK)
	}
	if first.Error != "" {
		t.Errorf("first.Error = %q, want empty", first.Error)
	}
	wantTime := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if !first.Time.Equal(wantTime) {
		t.Errorf("first.Time = %v, want %v", first.Time, wantTime)
	}

	second := records[1]
	if second.Outcome != OutcomeError {
		t.Errorf("second.Outcome = %q, want %q", second.Outcome, OutcomeError)
	}
	if second.Error != os.ErrPermission.Error() {
		t.Errorf("second.Error = %q, want %q", second.Error, os.ErrPermission.Error())
	}
	if !second.Time.After(first.Time) {
		t.Errorf("second.Time = %v, not after first %v", second.Time, first.Time)
	}
}

func TestAppendCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "log", "hutch", "operations.cbor")
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	journal := New(path, clk, slog.New(slog.DiscardHandler))

	journal.Append("create", "7", nil, nil)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("journal file not created: %v", err)
	}
}

func TestAppendFailureIsLoggedNotFatal(t *testing.T) {
	// A directory at the journal path makes the open fail.
	dir := t.TempDir()
	path := filepath.Join(dir, "operations.cbor")
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatal(err)
	}

	var logged bytes.Buffer
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	journal := New(path, clk, slog.New(slog.NewTextHandler(&logged, nil)))

	journal.Append("create", "7", nil, nil)

	if !strings.Contains(logged.String(), "journal append failed") {
		t.Errorf("append failure not logged, log output:\n%s", logged.String())
	}
}

func TestRead_MissingFile(t *testing.T) {
	records, err := Read(filepath.Join(t.TempDir(), "absent.cbor"), 0)
	if err != nil {
		t.Fatalf("Read() error = %v, want nil for missing file", err)
	}
	if records != nil {
		t.Fatalf("Read() = %v, want nil", records)
	}
}

func TestRead_LimitKeepsMostRecent(t *testing.T) {
	journal, path, clk := testJournal(t)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		journal.Append("start", id, nil, nil)
		clk.Advance(time.Second)
	}

	records, err := Read(path, 2)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Machine != "4" || records[1].Machine != "5" {
		t.Errorf("limited records target %q, %q; want 4, 5", records[0].Machine, records[1].Machine)
	}
}

func TestRead_TruncatedTailReturnsIntactRecords(t *testing.T) {
	journal, path, _ := testJournal(t)
	journal.Append("create", "3", nil, nil)
	journal.Append("start", "3", nil, nil)

	// Simulate a crash mid-append: a CBOR text-string head with no
	// length byte behind it.
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.Write([]byte{0x78}); err != nil {
		t.Fatal(err)
	}
	file.Close()

	records, err := Read(path, 0)
	if err == nil {
		t.Fatal("Read() error = nil, want decode failure for truncated tail")
	}
	if !strings.Contains(err.Error(), "record 2") {
		t.Errorf("Read() error = %v, want mention of record 2", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want the 2 intact records", len(records))
	}
	if records[0].Operation != "create" || records[1].Operation != "start" {
		t.Errorf("intact records = %q, %q; want create, start", records[0].Operation, records[1].Operation)
	}
}
