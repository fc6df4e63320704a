// Package testutil provides helpers for tests that wait on state changed by
// another goroutine.
package testutil

import (
	"context"
	"fmt"
	"time"
)

// DefaultInterval is the polling interval used by Eventually.
const DefaultInterval = time.Millisecond

// Poll calls condition every interval until it returns true, ctx is done,
// or timeout elapses.
func Poll(ctx context.Context, condition func() bool, timeout, interval time.Duration) error {
	_, err := WaitForState(ctx, condition, func(ok bool) bool { return ok }, timeout, interval)
	return err
}

// WaitForState calls getter every interval until predicate accepts its
// result, which is returned.
func WaitForState[T any](ctx context.Context, getter func() T, predicate func(T) bool, timeout, interval time.Duration) (T, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		state := getter()
		if predicate(state) {
			return state, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-deadline.C:
			var zero T
			return zero, fmt.Errorf("timeout waiting for %T state after %v, last: %v", state, timeout, state)
		case <-ticker.C:
		}
	}
}

// Eventually is Poll with DefaultInterval, for use inside a goroutine of a
// test that bounds ctx.
func Eventually(ctx context.Context, condition func() bool) error {
	return Poll(ctx, condition, time.Minute, DefaultInterval)
}
