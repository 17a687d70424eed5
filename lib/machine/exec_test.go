// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestExecSingleTarget(t *testing.T) {
	f := newFixture(t)
	f.seedMachine(t, "5", "", "", "")
	f.sup.running["5"] = true
	f.sup.runIn = func(id string, argv []string) (string, int, error) {
		return "hi\n", 0, nil
	}
	registry := f.load(t)

	results, err := f.manager.Exec(context.Background(), registry, "5", []string{"echo", "hi"})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	got := results[0]
	if got.Machine != "5" || got.Output != "hi\n" || got.ExitCode != 0 || got.Err != nil {
		t.Fatalf("result = %+v", got)
	}
	assertCalls(t, f.sup.calls, []string{"run-in 5 [echo hi]"})
}

func TestExecResolvesAlias(t *testing.T) {
	f := newFixture(t)
	f.seedMachine(t, "5", "web", "", "")
	f.sup.running["5"] = true
	registry := f.load(t)

	results, err := f.manager.Exec(context.Background(), registry, "web", []string{"true"})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if results[0].Machine != "5" {
		t.Fatalf("Machine = %q, want 5", results[0].Machine)
	}
}

func TestExecUnknownTarget(t *testing.T) {
	f := newFixture(t)
	registry := f.load(t)

	results, err := f.manager.Exec(context.Background(), registry, "ghost", []string{"true"})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
	if results != nil {
		t.Fatalf("results = %v, want none", results)
	}
}

func TestExecAllTargetsRunningMachines(t *testing.T) {
	f := newFixture(t)
	f.seedMachine(t, "2", "", "", "")
	f.seedMachine(t, "5", "", "", "")
	f.seedMachine(t, "9", "", "", "")
	f.sup.running["2"] = true
	f.sup.running["9"] = true
	registry := f.load(t)

	results, err := f.manager.Exec(context.Background(), registry, "all", []string{"uptime"})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Machine != "2" || results[1].Machine != "9" {
		t.Fatalf("targets = %q, %q, want 2, 9", results[0].Machine, results[1].Machine)
	}
}

func TestExecAllWithNothingRunning(t *testing.T) {
	f := newFixture(t)
	f.seedMachine(t, "2", "", "", "")
	registry := f.load(t)

	results, err := f.manager.Exec(context.Background(), registry, "all", []string{"uptime"})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
}

func TestExecFailuresDoNotAbortFanout(t *testing.T) {
	f := newFixture(t)
	f.seedMachine(t, "2", "", "", "")
	f.seedMachine(t, "9", "", "", "")
	f.sup.running["2"] = true
	f.sup.running["9"] = true
	f.sup.runIn = func(id string, argv []string) (string, int, error) {
		if id == "2" {
			return "", 0, fmt.Errorf("connection refused")
		}
		return "ok\n", 0, nil
	}
	registry := f.load(t)

	results, err := f.manager.Exec(context.Background(), registry, "all", []string{"true"})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Err == nil {
		t.Error("failing machine reported no error")
	}
	if results[1].Err != nil || results[1].Output != "ok\n" {
		t.Errorf("healthy machine result = %+v", results[1])
	}
}

func TestExecReportsExitCodes(t *testing.T) {
	f := newFixture(t)
	f.seedMachine(t, "5", "", "", "")
	f.sup.running["5"] = true
	f.sup.runIn = func(id string, argv []string) (string, int, error) {
		return "no such file\n", 2, nil
	}
	registry := f.load(t)

	results, err := f.manager.Exec(context.Background(), registry, "5", []string{"ls", "/nope"})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if results[0].ExitCode != 2 || results[0].Err != nil {
		t.Fatalf("result = %+v, want exit code 2 without error", results[0])
	}
}

func TestExecStoppedSingleTargetSurfacesSupervisorRefusal(t *testing.T) {
	f := newFixture(t)
	f.seedMachine(t, "5", "", "", "")
	f.sup.runIn = func(id string, argv []string) (string, int, error) {
		return "", 0, fmt.Errorf("machine %s is not running", id)
	}
	registry := f.load(t)

	results, err := f.manager.Exec(context.Background(), registry, "5", []string{"true"})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if results[0].Err == nil {
		t.Fatal("stopped machine reported no error")
	}
}

func TestPrefixLines(t *testing.T) {
	tests := []struct {
		name string
		id   string
		text string
		want string
	}{
		{"empty", "5", "", ""},
		{"no trailing newline", "5", "hello", "5: hello"},
		{"trailing newline", "5", "a\nb\n", "5: a\n5: b\n"},
		{"blank interior line", "12", "x\n\ny\n", "12: x\n12: \n12: y\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrefixLines(tt.id, tt.text); got != tt.want {
				t.Fatalf("PrefixLines(%q, %q) = %q, want %q", tt.id, tt.text, got, tt.want)
			}
		})
	}
}
