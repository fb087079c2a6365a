package concurrency

import (
	"context"
	"sync/atomic"
)

const defaultMaxConcurrentRequests = 16

// ConcurrencyLimiter bounds concurrent operations via semaphore pattern.
// It tracks the number of active operations.
type ConcurrencyLimiter struct {
	semaphore      chan struct{}
	maxConcurrent  int
	activeRequests atomic.Int64
}

// NewConcurrencyLimiter creates a limiter that bounds concurrent operations.
// A non-positive limit falls back to the default.
func NewConcurrencyLimiter(maxConcurrent int) *ConcurrencyLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentRequests
	}

	return &ConcurrencyLimiter{
		semaphore:     make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire blocks until a slot is available or context is canceled.
// Returns true if acquired, false if context was canceled.
func (cl *ConcurrencyLimiter) Acquire(ctx context.Context) bool {
	// A canceled context never acquires, even if a slot is free.
	if ctx.Err() != nil {
		return false
	}

	select {
	case cl.semaphore <- struct{}{}:
		cl.activeRequests.Add(1)
		return true
	case <-ctx.Done():
		return false
	}
}

// Release returns a slot to the pool.
// A release without a matching acquire is a no-op.
func (cl *ConcurrencyLimiter) Release() {
	select {
	case <-cl.semaphore:
		cl.activeRequests.Add(-1)
	default:
	}
}

// ActiveRequests returns the current number of acquired slots.
func (cl *ConcurrencyLimiter) ActiveRequests() int64 {
	return cl.activeRequests.Load()
}

// Limit returns the maximum number of concurrent slots.
func (cl *ConcurrencyLimiter) Limit() int {
	return cl.maxConcurrent
}
