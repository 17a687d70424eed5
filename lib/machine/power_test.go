// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"context"
	"errors"
	"testing"
)

func TestStartConvergesByPolling(t *testing.T) {
	f := newFixture(t)
	f.sup.startDelay = 2

	err := f.drive(func() error {
		return f.manager.Start(context.Background(), "5")
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	assertCalls(t, f.sup.calls, []string{"start 5"})
	if !f.sup.running["5"] {
		t.Error("machine not running after Start")
	}
	// One poll before the kick, then polls until the supervisor
	// listed it.
	if f.sup.listCount != 3 {
		t.Errorf("listCount = %d, want 3", f.sup.listCount)
	}
}

func TestStartRunningMachineOnlyWaits(t *testing.T) {
	f := newFixture(t)
	f.sup.running["5"] = true

	if err := f.manager.Start(context.Background(), "5"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(f.sup.calls) != 0 {
		t.Fatalf("Start kicked a running machine: %q", f.sup.calls)
	}
}

func TestStopPowersOffCleanly(t *testing.T) {
	f := newFixture(t)
	f.sup.running["5"] = true
	f.sup.stopDelay = 2

	err := f.drive(func() error {
		return f.manager.Stop(context.Background(), "5", false)
	})
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	assertCalls(t, f.sup.calls, []string{"poweroff 5"})
	if f.sup.running["5"] {
		t.Error("machine still running after Stop")
	}
}

func TestStopKillTerminates(t *testing.T) {
	f := newFixture(t)
	f.sup.running["5"] = true

	if err := f.manager.Stop(context.Background(), "5", true); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	assertCalls(t, f.sup.calls, []string{"terminate 5"})
}

func TestStopStoppedMachineIsNoOp(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.Stop(context.Background(), "5", false); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(f.sup.calls) != 0 {
		t.Fatalf("Stop touched a stopped machine: %q", f.sup.calls)
	}
}

func TestRestart(t *testing.T) {
	f := newFixture(t)
	f.sup.running["5"] = true

	err := f.drive(func() error {
		return f.manager.Restart(context.Background(), "5", false)
	})
	if err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	assertCalls(t, f.sup.calls, []string{"poweroff 5", "start 5"})
	if !f.sup.running["5"] {
		t.Error("machine not running after Restart")
	}
}

func TestStartHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	// Never converges within the test.
	f.sup.startDelay = 1000

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.manager.Start(ctx, "5") }()

	// The wait loop is parked on the poll timer once a waiter exists.
	f.clock.WaitForTimers(1)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() error = %v, want context.Canceled", err)
	}
}
