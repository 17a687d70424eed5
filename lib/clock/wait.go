// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadlineExceeded is returned by WaitUntil when the condition does
// not hold within the deadline.
var ErrDeadlineExceeded = errors.New("deadline exceeded")

// WaitUntil polls predicate every interval until it reports true. A
// zero deadline means wait forever, bounded only by ctx. Predicate
// errors abort the wait immediately.
//
// The predicate runs once before the first wait, so a condition that
// already holds returns without consuming clock time.
func WaitUntil(ctx context.Context, clk Clock, interval, deadline time.Duration, predicate func(context.Context) (bool, error)) error {
	var expiry time.Time
	if deadline > 0 {
		expiry = clk.Now().Add(deadline)
	}

	for {
		done, err := predicate(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if deadline > 0 && !clk.Now().Before(expiry) {
			return fmt.Errorf("%w after %s", ErrDeadlineExceeded, deadline)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(interval):
		}
	}
}
