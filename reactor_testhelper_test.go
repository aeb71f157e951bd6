package ioreactor

import (
	"context"
	"testing"
	"time"
)

// runReactor starts r.Run on its own goroutine and returns a stop function
// that cancels it and waits for the goroutine to exit.
func runReactor(t *testing.T, r *Reactor) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("reactor did not stop in time")
		}
	}
}

// await blocks until ch is closed or the timeout elapses, failing the test
// otherwise.
func await(t *testing.T, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}
