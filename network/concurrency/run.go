package concurrency

import (
	"context"
)

type result[T any] struct {
	value T
	err   error
}

// RunWithContext runs fn on its own goroutine and returns whichever comes first:
// fn's result or ctx being done. A result arriving after ctx is done is discarded,
// so callers never observe a late result even if fn ignores its context.
func RunWithContext[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	// Buffered so a late sender never blocks after the caller has left.
	resultCh := make(chan result[T], 1)

	go func() {
		value, err := fn(ctx)
		resultCh <- result[T]{value: value, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
