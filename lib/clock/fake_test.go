// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	select {
	case <-channel:
		t.Fatal("After fired before Advance")
	default:
	}

	clock.Advance(3 * time.Second)

	select {
	case <-channel:
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeClockAfterZeroDuration(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(0)

	select {
	case <-channel:
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeClockAfterPartialAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(5 * time.Second)

	clock.Advance(3 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before deadline")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at exact deadline")
	}
}

func TestFakeClockSleepBlocksUntilAdvance(t *testing.T) {
	clock := Fake(epoch)

	done := make(chan struct{})
	go func() {
		clock.Sleep(2 * time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)

	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	clock.Advance(2 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeClockSleepZeroReturnsImmediately(t *testing.T) {
	clock := Fake(epoch)
	clock.Sleep(0)
	clock.Sleep(-time.Second)
}

func TestFakeClockTickerFiresPerInterval(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	clock.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	clock.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after second interval")
	}
}

func TestFakeClockTickerStopped(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()

	clock.Advance(3 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeClockTickerDropsWhenBehind(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	// Span several intervals without draining. The capacity-1
	// channel holds exactly one tick.
	clock.Advance(5 * time.Second)

	count := 0
	for {
		select {
		case <-ticker.C:
			count++
		default:
			if count != 1 {
				t.Fatalf("buffered ticks = %d, want 1", count)
			}
			return
		}
	}
}

func TestFakeClockNewTickerPanicsOnNonPositive(t *testing.T) {
	clock := Fake(epoch)
	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) did not panic")
		}
	}()
	clock.NewTicker(0)
}

func TestFakeClockConcurrentSleepers(t *testing.T) {
	clock := Fake(epoch)

	const sleepers = 8
	var wg sync.WaitGroup
	for i := range sleepers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Sleep(time.Duration(i+1) * time.Second)
		}()
	}

	clock.WaitForTimers(sleepers)
	clock.Advance(sleepers * time.Second)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sleepers did not all wake")
	}
}

func TestFakeClockPendingCount(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.PendingCount(); got != 0 {
		t.Fatalf("PendingCount = %d, want 0", got)
	}
	clock.After(time.Second)
	clock.After(2 * time.Second)
	if got := clock.PendingCount(); got != 2 {
		t.Fatalf("PendingCount = %d, want 2", got)
	}
	clock.Advance(time.Second)
	if got := clock.PendingCount(); got != 1 {
		t.Fatalf("PendingCount after Advance = %d, want 1", got)
	}
}
