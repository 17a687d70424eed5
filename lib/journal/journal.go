// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal records every state-changing operation in an
// append-only CBOR file: one deterministic record per operation with
// its time, target machine, detail map, and outcome. The journal is
// an audit trail, not a transaction log — appends are best-effort and
// never block or fail administration. Reading it back powers the
// journal command.
package journal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hutch-systems/hutch/lib/clock"
	"github.com/hutch-systems/hutch/lib/codec"
)

// Outcome values for Record.Outcome.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Record is one journaled operation. CBOR on disk, JSON in --json
// output; the json tags serve both via the codec fallback rule.
type Record struct {
	// Time is when the operation finished, UTC.
	Time time.Time `json:"time"`

	// Operation names what ran: "create", "destroy", "rename", ...
	Operation string `json:"operation"`

	// Machine is the identifier the operation targeted, when it
	// targeted one.
	Machine string `json:"machine,omitempty"`

	// Detail carries operation-specific facts: a rename's new
	// identifier, a clone's source, an export's output file.
	Detail map[string]string `json:"detail,omitempty"`

	// Outcome is OutcomeOK or OutcomeError.
	Outcome string `json:"outcome"`

	// Error is the failure text when Outcome is OutcomeError.
	Error string `json:"error,omitempty"`
}

// Journal appends operation records to a single file. The zero value
// is not usable; construct with New.
type Journal struct {
	path   string
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a Journal appending to the given path. The logger
// receives append failures — they are reported there and nowhere
// else, because journaling must never break the operation it records.
func New(path string, clk clock.Clock, logger *slog.Logger) *Journal {
	return &Journal{path: path, clock: clk, logger: logger}
}

// Append records one finished operation. opErr nil means the
// operation succeeded; non-nil records its text with OutcomeError.
// Failures to append are logged and swallowed.
func (j *Journal) Append(operation, machine string, detail map[string]string, opErr error) {
	record := Record{
		Time:      j.clock.Now().UTC(),
		Operation: operation,
		Machine:   machine,
		Detail:    detail,
		Outcome:   OutcomeOK,
	}
	if opErr != nil {
		record.Outcome = OutcomeError
		record.Error = opErr.Error()
	}

	if err := j.append(record); err != nil {
		j.logger.Warn("journal append failed",
			"path", j.path, "operation", operation, "error", err)
	}
}

func (j *Journal) append(record Record) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return err
	}

	data, err := codec.Marshal(record)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	// A single Write of a whole record keeps concurrent hutch
	// invocations from interleaving records: O_APPEND writes are
	// atomic for sizes this small.
	_, writeErr := file.Write(data)
	closeErr := file.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

// Read returns the journal's records in file order (oldest first).
// limit > 0 keeps only the most recent limit records. A missing
// journal file reads as empty — no operations have been recorded yet.
//
// A decode failure mid-file (e.g. a record truncated by a crash)
// returns every record decoded before the failure alongside the
// error, so callers can render what survives.
func Read(path string, limit int) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var records []Record
	decoder := codec.NewDecoder(file)
	for {
		var record Record
		err := decoder.Decode(&record)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, fmt.Errorf("journal %s: record %d: %w", path, len(records), err)
		}
		records = append(records, record)
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}
