package asyncdb

import (
	"context"
	"log/slog"
	"sync"
)

// Status is the outcome recorded in a CompletionSignal.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// CompletionSignal is a settled outcome: the value on success, the error
// otherwise.
type CompletionSignal struct {
	Status  Status
	Payload any
}

// Future is a value that settles exactly once.
//
// Settlement happens on the engine loop; Await, Done and Signal may be used
// from any goroutine except the loop itself.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error

	// Loop-confined: set before the first settlement attempt.
	op    string
	log   *slog.Logger
	hooks []func(error)
}

func newFuture[T any](op string, log *slog.Logger) *Future[T] {
	return &Future[T]{done: make(chan struct{}), op: op, log: log}
}

// Done returns a channel closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx is done. Cancelling ctx does
// not cancel the underlying operation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Signal awaits the future and reports it as a CompletionSignal.
func (f *Future[T]) Signal(ctx context.Context) CompletionSignal {
	v, err := f.Await(ctx)
	if err != nil {
		return CompletionSignal{Status: StatusError, Payload: err}
	}
	return CompletionSignal{Status: StatusSuccess, Payload: v}
}

// onSettle registers fn to run once at settlement with the error, if any.
func (f *Future[T]) onSettle(fn func(error)) {
	f.hooks = append(f.hooks, fn)
}

// resolve settles with v. It reports false if the future had already settled.
func (f *Future[T]) resolve(v T) bool {
	return f.settle(v, nil)
}

// reject settles with err. It reports false if the future had already settled.
func (f *Future[T]) reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	settled := false
	f.once.Do(func() {
		settled = true
		f.val, f.err = v, err
		for _, hook := range f.hooks {
			hook(err)
		}
		close(f.done)
	})
	if !settled && f.log != nil {
		f.log.Debug("ignoring signal for settled future", "op", f.op, "error", err)
	}
	return settled
}
