package retry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"

	"github.com/buildwithgrove/ledgerclient/pool"
	"github.com/buildwithgrove/ledgerclient/protocol"
	"github.com/buildwithgrove/ledgerclient/testutil/ledgertest"
)

const testChainID = 1

var (
	endpointA = protocol.EndpointAddr("http://10.0.0.1:8545")
	endpointB = protocol.EndpointAddr("http://10.0.0.2:8545")
	endpointC = protocol.EndpointAddr("http://10.0.0.3:8545")
)

// balanceHandler answers eth_getBalance with balance, or fails with kind if kind is set.
func balanceHandler(balance string, kind protocol.ErrorKind) ledgertest.Handler {
	return ledgertest.Node(testChainID, 100, ledgertest.Methods(map[string]ledgertest.Handler{
		"eth_getBalance": func(context.Context, string, json.RawMessage) (any, error) {
			if kind != "" {
				return nil, ledgertest.Err(kind)
			}
			return balance, nil
		},
	}))
}

func newTestExecutor(t *testing.T, handlers map[protocol.EndpointAddr]ledgertest.Handler, order ...protocol.EndpointAddr) (*Executor, *pool.Pool, *ledgertest.Transport) {
	t.Helper()

	transport := ledgertest.NewTransport()
	for addr, handler := range handlers {
		transport.Handle(addr, handler)
	}

	logger := polyzero.NewLogger()
	p := pool.New(logger, transport, pool.Config{
		LocalAdmissionTimeout:  time.Second,
		RemoteAdmissionTimeout: time.Second,
		MaxConsecutiveFailures: 10,
	})
	require.NoError(t, p.Build(context.Background(), order, testChainID))

	executor := NewExecutor(logger, p, Config{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		AttemptTimeout: time.Second,
	})
	return executor, p, transport
}

func getBalance(ctx context.Context, endpoint *pool.Endpoint) (string, error) {
	var balance string
	err := endpoint.Call(ctx, "eth_getBalance", []any{"0x0", "latest"}, &balance)
	return balance, err
}

func TestDo_SucceedsWhileAnyEndpointIsHealthy(t *testing.T) {
	executor, _, transport := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{
		endpointA: balanceHandler("", protocol.KindRateLimited),
		endpointB: balanceHandler("", protocol.KindTransport),
		endpointC: balanceHandler("0x2a", ""),
	}, endpointA, endpointB, endpointC)

	balance, err := Do(context.Background(), executor, getBalance)
	require.NoError(t, err)
	require.Equal(t, "0x2a", balance)

	for _, addr := range []protocol.EndpointAddr{endpointA, endpointB, endpointC} {
		var balanceCalls int
		for _, call := range transport.Calls(addr) {
			if call.Method == "eth_getBalance" {
				balanceCalls++
			}
		}
		require.Equal(t, 1, balanceCalls, "endpoint %s", addr)
	}
}

func TestDo_RotatesAfterNetworkError(t *testing.T) {
	executor, p, _ := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{
		endpointA: balanceHandler("", protocol.KindTimeout),
		endpointB: balanceHandler("0x1", ""),
	}, endpointA, endpointB)

	var tried []protocol.EndpointAddr
	balance, err := Do(context.Background(), executor, func(ctx context.Context, endpoint *pool.Endpoint) (string, error) {
		tried = append(tried, endpoint.Addr)
		return getBalance(ctx, endpoint)
	})
	require.NoError(t, err)
	require.Equal(t, "0x1", balance)
	require.Equal(t, []protocol.EndpointAddr{endpointA, endpointB}, tried)

	// The rotation is shared: the next read starts on the healthy endpoint.
	current, err := p.Current()
	require.NoError(t, err)
	require.Equal(t, endpointB, current.Addr)
}

func TestDo_DomainErrorIsNotRetried(t *testing.T) {
	executor, p, transport := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{
		endpointA: balanceHandler("", protocol.KindNotFound),
		endpointB: balanceHandler("0x1", ""),
	}, endpointA, endpointB)

	_, err := Do(context.Background(), executor, getBalance)
	require.Error(t, err)
	require.Equal(t, protocol.KindNotFound, protocol.KindOf(err))

	var exhausted *protocol.ExhaustedError
	require.False(t, errors.As(err, &exhausted))

	require.Equal(t, 1, transport.CallCount("eth_getBalance"))
	current, err := p.Current()
	require.NoError(t, err)
	require.Equal(t, endpointA, current.Addr)
}

func TestDo_ExhaustedAttemptsListEveryEndpoint(t *testing.T) {
	executor, _, _ := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{
		endpointA: balanceHandler("", protocol.KindRateLimited),
		endpointB: balanceHandler("", protocol.KindUnauthorized),
		endpointC: balanceHandler("", protocol.KindTransport),
	}, endpointA, endpointB, endpointC)

	_, err := Do(context.Background(), executor, getBalance)

	var exhausted *protocol.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 3)
	require.Equal(t, protocol.EndpointAddrList{endpointA, endpointB, endpointC}, exhausted.Endpoints())
	require.Equal(t, protocol.KindRateLimited, exhausted.Attempts[0].Kind)
	require.Equal(t, protocol.KindUnauthorized, exhausted.Attempts[1].Kind)
	require.Equal(t, protocol.KindTransport, protocol.KindOf(err))
}

func TestDo_SingleEndpointIsRetried(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	flaky := ledgertest.Node(testChainID, 100, func(context.Context, string, json.RawMessage) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return nil, ledgertest.Err(protocol.KindTransport)
		}
		return "0x3", nil
	})

	executor, _, _ := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{endpointA: flaky}, endpointA)

	balance, err := Do(context.Background(), executor, getBalance)
	require.NoError(t, err)
	require.Equal(t, "0x3", balance)
	require.Equal(t, 3, calls)
}

func TestDo_BackoffDoublesBetweenAttempts(t *testing.T) {
	executor, _, _ := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{
		endpointA: balanceHandler("", protocol.KindTransport),
	}, endpointA)

	var attemptTimes []time.Time
	_, err := Do(context.Background(), executor, func(ctx context.Context, endpoint *pool.Endpoint) (string, error) {
		attemptTimes = append(attemptTimes, time.Now())
		return getBalance(ctx, endpoint)
	}, WithBaseDelay(20*time.Millisecond), WithMaxAttempts(3))
	require.Error(t, err)
	require.Len(t, attemptTimes, 3)

	require.GreaterOrEqual(t, attemptTimes[1].Sub(attemptTimes[0]), 20*time.Millisecond)
	require.GreaterOrEqual(t, attemptTimes[2].Sub(attemptTimes[1]), 40*time.Millisecond)
}

func TestDo_TimedOutAttemptIsDiscarded(t *testing.T) {
	executor, _, _ := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{
		endpointA: balanceHandler("0x1", ""),
		endpointB: balanceHandler("0x2", ""),
	}, endpointA, endpointB)

	release := make(chan struct{})
	defer close(release)

	balance, err := Do(context.Background(), executor, func(ctx context.Context, endpoint *pool.Endpoint) (string, error) {
		if endpoint.Addr == endpointA {
			// Ignores its context, as a call without cooperative cancellation would.
			<-release
			return "late", nil
		}
		return getBalance(ctx, endpoint)
	}, WithAttemptTimeout(20*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, "0x2", balance)
}

func TestDo_CallerCancellation(t *testing.T) {
	executor, _, _ := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{
		endpointA: balanceHandler("", protocol.KindTransport),
	}, endpointA)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := Do(ctx, executor, func(ctx context.Context, endpoint *pool.Endpoint) (string, error) {
		cancel()
		return getBalance(ctx, endpoint)
	}, WithBaseDelay(time.Second))
	require.ErrorIs(t, err, context.Canceled)
}

func TestDo_EmptyPool(t *testing.T) {
	logger := polyzero.NewLogger()
	executor := NewExecutor(logger, pool.New(logger, ledgertest.NewTransport(), pool.Config{}), Config{})

	_, err := Do(context.Background(), executor, getBalance)
	require.ErrorIs(t, err, protocol.ErrPoolEmpty)
}

func TestExecutor_Call(t *testing.T) {
	executor, _, _ := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{
		endpointA: balanceHandler("", protocol.KindRateLimited),
		endpointB: balanceHandler("0xff", ""),
	}, endpointA, endpointB)

	var balance string
	require.NoError(t, executor.Call(context.Background(), "eth_getBalance", []any{"0x0", "latest"}, &balance))
	require.Equal(t, "0xff", balance)
}

func TestDo_RetryIf(t *testing.T) {
	executor, _, transport := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{
		endpointA: balanceHandler("", protocol.KindNotFound),
		endpointB: balanceHandler("0x7", ""),
	}, endpointA, endpointB)

	retryNotFound := func(err error) bool {
		return protocol.KindOf(err) == protocol.KindNotFound
	}

	balance, err := Do(context.Background(), executor, getBalance, WithRetryIf(retryNotFound))
	require.NoError(t, err)
	require.Equal(t, "0x7", balance)
	require.Equal(t, 2, transport.CallCount("eth_getBalance"))
}

func TestDo_RetryIf_Exhausted(t *testing.T) {
	executor, _, _ := newTestExecutor(t, map[protocol.EndpointAddr]ledgertest.Handler{
		endpointA: balanceHandler("", protocol.KindNotFound),
		endpointB: balanceHandler("", protocol.KindNotFound),
	}, endpointA, endpointB)

	_, err := Do(context.Background(), executor, getBalance, WithRetryIf(func(error) bool { return true }), WithMaxAttempts(2))

	var exhausted *protocol.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, protocol.EndpointAddrList{endpointA, endpointB}, exhausted.Endpoints())
}
