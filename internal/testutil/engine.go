// Package testutil provides helpers shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/asyncdb/internal/engine"
	"github.com/roach88/asyncdb/internal/store"
)

// StartEngine runs a file-backed engine in a temp dir until the test ends.
func StartEngine(t testing.TB, opts ...engine.Option) *engine.Factory {
	t.Helper()
	return StartEngineWith(t, engine.Config{Driver: store.DriverMattn, Dir: t.TempDir()}, opts...)
}

// StartEngineWith runs an engine with cfg until the test ends.
// Cleanup stops the loop and waits for it to drain.
func StartEngineWith(t testing.TB, cfg engine.Config, opts ...engine.Option) *engine.Factory {
	t.Helper()
	opts = append([]engine.Option{engine.WithIDGenerator(engine.NewSequenceGenerator("test"))}, opts...)
	f, err := engine.NewFactory(cfg, opts...)
	if err != nil {
		t.Fatalf("NewFactory() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		f.Run(ctx)
	}()

	t.Cleanup(func() {
		f.Stop()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Error("engine loop did not stop within 5s")
		}
		cancel()
	})
	return f
}

// Await waits for a settled value with a test timeout.
func Await[T any](t testing.TB, await func(context.Context) (T, error)) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := await(ctx)
	if ctx.Err() != nil {
		t.Fatalf("timed out waiting for result")
	}
	return v, err
}
