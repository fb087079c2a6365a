// Package retry runs reads against an endpoint pool, retrying network-class failures
// on the next endpoint with exponential backoff.
//
// Reads have no side effects, so repeating one on another endpoint is always safe.
// Writes must never go through this package's retry loop: see package txn.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/metrics"
	"github.com/buildwithgrove/ledgerclient/network/concurrency"
	"github.com/buildwithgrove/ledgerclient/pool"
	"github.com/buildwithgrove/ledgerclient/protocol"
)

const (
	outcomeSuccess  = "success"
	outcomeRetried  = "retried"
	outcomeReturned = "returned"
)

// EndpointPool is the subset of pool.Pool used by the executor.
type EndpointPool interface {
	Current() (*pool.Endpoint, error)
	Rotate(from *pool.Endpoint) (next *pool.Endpoint, exhausted bool, err error)
	ReportSuccess(endpoint *pool.Endpoint, latency time.Duration)
	ReportFailure(endpoint *pool.Endpoint, err error)
}

// Executor applies the retry policy to reads. It is safe for concurrent use.
type Executor struct {
	logger polylog.Logger
	pool   EndpointPool
	config Config
}

func NewExecutor(logger polylog.Logger, endpointPool EndpointPool, config Config) *Executor {
	config.HydrateDefaults()

	return &Executor{
		logger: logger.With("component", "retry_executor"),
		pool:   endpointPool,
		config: config,
	}
}

// Op is one read attempt against one endpoint.
type Op[T any] func(ctx context.Context, endpoint *pool.Endpoint) (T, error)

// Do runs op against the pool's current endpoint.
//
// A network-class failure rotates the pool away from the failed endpoint and retries
// after BaseDelay * 2^(attempt-1), up to MaxAttempts attempts in total. Any other failure
// is returned unchanged, without rotation, unless WithRetryIf marks it retryable. Once every attempt has failed, Do returns a
// *protocol.ExhaustedError listing each endpoint tried with its classified reason.
func Do[T any](ctx context.Context, e *Executor, op Op[T], opts ...Option) (T, error) {
	var zero T

	config := e.config
	for _, opt := range opts {
		opt(&config)
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	endpoint, err := e.pool.Current()
	if err != nil {
		return zero, err
	}

	var (
		result   T
		attempts []protocol.Attempt
	)

	operation := func() error {
		value, err := runAttempt(ctx, e, config, endpoint, op)
		if err == nil {
			result = value
			metrics.ObserveRetryAttempt(outcomeSuccess)
			return nil
		}

		// The caller gave up: nothing to classify.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}

		if !config.retryable(err) {
			metrics.ObserveRetryAttempt(outcomeReturned)
			return backoff.Permanent(err)
		}

		attempts = append(attempts, protocol.Attempt{
			Endpoint: endpoint.Addr,
			Kind:     protocol.KindOf(err),
			Err:      err,
		})
		e.pool.ReportFailure(endpoint, err)
		return err
	}

	notify := func(err error, delay time.Duration) {
		metrics.ObserveRetryAttempt(outcomeRetried)

		next, exhausted, rotateErr := e.pool.Rotate(endpoint)
		if rotateErr != nil {
			// Only an emptied pool fails to rotate: retry the same endpoint.
			e.logger.Warn().Err(rotateErr).Msg("could not rotate endpoint")
			return
		}

		logger := e.logger.Debug()
		if exhausted {
			logger = e.logger.Warn()
		}
		logger.
			Err(err).
			Str("failed_host", endpoint.Addr.Host()).
			Str("next_host", next.Addr.Host()).
			Bool("pool_exhausted", exhausted).
			Msgf("retrying read in %s", delay)

		endpoint = next
	}

	err = backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(newBackOff(config), uint64(config.MaxAttempts-1)), ctx),
		notify,
	)
	if err == nil {
		return result, nil
	}

	if ctx.Err() != nil || !config.retryable(err) || len(attempts) == 0 {
		return zero, err
	}

	metrics.ObserveRetryExhausted()
	exhaustedErr := &protocol.ExhaustedError{Attempts: attempts}
	e.logger.Warn().Err(exhaustedErr).Msg("read failed on every attempt")
	return zero, exhaustedErr
}

// runAttempt runs op once, under the attempt timeout.
// If the attempt times out, a late result of op is discarded.
func runAttempt[T any](ctx context.Context, e *Executor, config Config, endpoint *pool.Endpoint, op Op[T]) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, config.AttemptTimeout)
	defer cancel()

	startTime := time.Now()
	value, err := concurrency.RunWithContext(attemptCtx, func(ctx context.Context) (T, error) {
		return op(ctx, endpoint)
	})
	if err == nil {
		e.pool.ReportSuccess(endpoint, time.Since(startTime))
		return value, nil
	}

	var classified *protocol.ClassifiedError
	if errors.Is(err, context.DeadlineExceeded) && !errors.As(err, &classified) {
		err = protocol.NewError(protocol.KindTimeout, endpoint.Addr, err)
	}
	return value, err
}

// newBackOff returns a backoff yielding BaseDelay * 2^(n-1) before the n-th retry.
func newBackOff(config Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.BaseDelay
	b.MaxInterval = config.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	// The attempt count and the caller's context bound the total time.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Call runs a single JSON-RPC read through the retry policy.
// result is only written once, with the response of the successful attempt.
func (e *Executor) Call(ctx context.Context, method string, params any, result any, opts ...Option) error {
	raw, err := Do(ctx, e, func(ctx context.Context, endpoint *pool.Endpoint) (json.RawMessage, error) {
		var raw json.RawMessage
		err := endpoint.Call(ctx, method, params, &raw)
		return raw, err
	}, opts...)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return protocol.NewError(protocol.KindMalformedArgs, "", fmt.Errorf("decoding %s result: %w", method, err))
	}
	return nil
}
