package pool

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"

	"github.com/buildwithgrove/ledgerclient/protocol"
	"github.com/buildwithgrove/ledgerclient/testutil/ledgertest"
)

const testChainID = 1

var (
	endpointA = protocol.EndpointAddr("http://10.0.0.1:8545")
	endpointB = protocol.EndpointAddr("http://10.0.0.2:8545")
	endpointC = protocol.EndpointAddr("http://10.0.0.3:8545")
)

func testConfig() Config {
	return Config{
		LocalAdmissionTimeout:  100 * time.Millisecond,
		RemoteAdmissionTimeout: 100 * time.Millisecond,
		SyncAllowance:          5,
		MaxConsecutiveFailures: 3,
		SanctionDuration:       time.Minute,
	}
}

func newTestPool(t *testing.T, transport Transport) *Pool {
	t.Helper()
	return New(polyzero.NewLogger(), transport, testConfig())
}

func buildHealthyPool(t *testing.T, addrs ...protocol.EndpointAddr) (*Pool, *ledgertest.Transport) {
	t.Helper()

	transport := ledgertest.NewTransport()
	for _, addr := range addrs {
		transport.Handle(addr, ledgertest.Node(testChainID, 100, nil))
	}

	p := newTestPool(t, transport)
	require.NoError(t, p.Build(context.Background(), addrs, testChainID))
	return p, transport
}

// Endpoint 1 times out, endpoint 2 reports another chain, endpoint 3 is healthy.
func TestBuild_AdmitsOnlyHealthyEndpoint(t *testing.T) {
	transport := ledgertest.NewTransport()
	transport.Handle(endpointA, ledgertest.Hanging())
	transport.Handle(endpointB, ledgertest.Node(5, 100, nil))
	transport.Handle(endpointC, ledgertest.Node(testChainID, 100, ledgertest.Methods(map[string]ledgertest.Handler{
		"eth_getBalance": func(context.Context, string, json.RawMessage) (any, error) {
			return "0x10", nil
		},
	})))

	p := newTestPool(t, transport)
	require.NoError(t, p.Build(context.Background(), protocol.EndpointAddrList{endpointA, endpointB, endpointC}, testChainID))

	statuses := p.Endpoints()
	require.Len(t, statuses, 1)
	require.Equal(t, endpointC, statuses[0].Addr)
	require.Equal(t, uint64(100), statuses[0].LastHeight)
	require.True(t, statuses[0].Current)

	current, err := p.Current()
	require.NoError(t, err)
	require.Equal(t, endpointC, current.Addr)

	var balance string
	require.NoError(t, current.Call(context.Background(), "eth_getBalance", []any{"0x0", "latest"}, &balance))
	require.Equal(t, "0x10", balance)
}

func TestCheckCandidate_RejectionReasons(t *testing.T) {
	tests := []struct {
		name           string
		handler        ledgertest.Handler
		expectedReason protocol.ErrorKind
	}{
		{name: "healthy endpoint", handler: ledgertest.Node(testChainID, 100, nil), expectedReason: ""},
		{name: "unauthorized", handler: ledgertest.Failing(protocol.KindUnauthorized), expectedReason: protocol.KindUnauthorized},
		{name: "forbidden", handler: ledgertest.Failing(protocol.KindForbidden), expectedReason: protocol.KindForbidden},
		{name: "rate limited", handler: ledgertest.Failing(protocol.KindRateLimited), expectedReason: protocol.KindRateLimited},
		{name: "wrong chain", handler: ledgertest.Node(10, 100, nil), expectedReason: protocol.KindWrongIdentity},
		{name: "timeout", handler: ledgertest.Hanging(), expectedReason: protocol.KindTimeout},
		{
			name: "height query fails",
			handler: func(ctx context.Context, method string, params json.RawMessage) (any, error) {
				if method == "eth_blockNumber" {
					return nil, ledgertest.Err(protocol.KindTransport)
				}
				return ledgertest.Node(testChainID, 0, nil)(ctx, method, params)
			},
			expectedReason: protocol.KindTransport,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			transport := ledgertest.NewTransport()
			transport.Handle(endpointA, test.handler)

			check := newTestPool(t, transport).checkCandidate(context.Background(), endpointA, testChainID)
			require.Equal(t, test.expectedReason, check.reason)
		})
	}
}

func TestBuild_RejectsStaleEndpoint(t *testing.T) {
	transport := ledgertest.NewTransport()
	transport.Handle(endpointA, ledgertest.Node(testChainID, 100, nil))
	transport.Handle(endpointB, ledgertest.Node(testChainID, 96, nil))
	transport.Handle(endpointC, ledgertest.Node(testChainID, 90, nil))

	p := newTestPool(t, transport)
	require.NoError(t, p.Build(context.Background(), protocol.EndpointAddrList{endpointA, endpointB, endpointC}, testChainID))

	statuses := p.Endpoints()
	require.Len(t, statuses, 2)
	require.Equal(t, endpointA, statuses[0].Addr)
	require.Equal(t, endpointB, statuses[1].Addr)
}

func TestBuild_KeepsConfigurationOrder(t *testing.T) {
	slow := func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		time.Sleep(30 * time.Millisecond)
		return ledgertest.Node(testChainID, 100, nil)(ctx, method, params)
	}

	transport := ledgertest.NewTransport()
	transport.Handle(endpointA, slow)
	transport.Handle(endpointB, ledgertest.Node(testChainID, 100, nil))

	p := newTestPool(t, transport)
	require.NoError(t, p.Build(context.Background(), protocol.EndpointAddrList{endpointA, endpointB}, testChainID))

	current, err := p.Current()
	require.NoError(t, err)
	require.Equal(t, endpointA, current.Addr)
}

func TestBuild_NoEndpointAdmitted(t *testing.T) {
	transport := ledgertest.NewTransport()
	transport.Handle(endpointA, ledgertest.Failing(protocol.KindUnauthorized))

	p := newTestPool(t, transport)
	err := p.Build(context.Background(), protocol.EndpointAddrList{endpointA}, testChainID)
	require.ErrorIs(t, err, protocol.ErrPoolEmpty)
	require.False(t, p.IsAlive())

	_, err = p.Current()
	require.ErrorIs(t, err, protocol.ErrPoolEmpty)

	_, _, err = p.Rotate(nil)
	require.ErrorIs(t, err, protocol.ErrPoolEmpty)
}

func TestBuild_SwitchesNetwork(t *testing.T) {
	transport := ledgertest.NewTransport()
	transport.Handle(endpointA, ledgertest.Node(testChainID, 100, nil))
	transport.Handle(endpointB, ledgertest.Node(137, 5000, nil))

	p := newTestPool(t, transport)
	candidates := protocol.EndpointAddrList{endpointA, endpointB}

	require.NoError(t, p.Build(context.Background(), candidates, testChainID))
	generation := p.Generation()
	current, err := p.Current()
	require.NoError(t, err)
	require.Equal(t, endpointA, current.Addr)

	require.NoError(t, p.Build(context.Background(), candidates, 137))
	require.NotEqual(t, generation, p.Generation())
	require.Equal(t, uint64(137), p.ChainID())

	current, err = p.Current()
	require.NoError(t, err)
	require.Equal(t, endpointB, current.Addr)
}

func TestRotate_NeverReselectsConsecutively(t *testing.T) {
	p, _ := buildHealthyPool(t, endpointA, endpointB, endpointC)

	current, err := p.Current()
	require.NoError(t, err)

	for range 6 {
		next, _, err := p.Rotate(current)
		require.NoError(t, err)
		require.NotEqual(t, current.Addr, next.Addr)
		current = next
	}
}

func TestRotate_SingleEndpointStays(t *testing.T) {
	p, _ := buildHealthyPool(t, endpointA)

	current, err := p.Current()
	require.NoError(t, err)

	next, exhausted, err := p.Rotate(current)
	require.NoError(t, err)
	require.Same(t, current, next)
	require.True(t, exhausted)
}

func TestRotate_ConcurrentRotationsFromSameEndpointAdvanceOnce(t *testing.T) {
	p, _ := buildHealthyPool(t, endpointA, endpointB, endpointC)

	failed, err := p.Current()
	require.NoError(t, err)
	require.Equal(t, endpointA, failed.Addr)

	errs := make(chan error, 10)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := p.Rotate(failed)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Ten callers observed the same failure: the healthy endpointB must not be skipped.
	current, err := p.Current()
	require.NoError(t, err)
	require.Equal(t, endpointB, current.Addr)
}

func TestRotate_Exhaustion(t *testing.T) {
	p, _ := buildHealthyPool(t, endpointA, endpointB, endpointC)

	current, err := p.Current()
	require.NoError(t, err)

	var exhausted bool
	for i := 0; i < 3; i++ {
		current, exhausted, err = p.Rotate(current)
		require.NoError(t, err)
		if i < 2 {
			require.False(t, exhausted, "rotation %d", i)
		}
	}
	require.True(t, exhausted)

	// A success resets the exhaustion tracking.
	p.ReportSuccess(current, 10*time.Millisecond)
	_, exhausted, err = p.Rotate(current)
	require.NoError(t, err)
	require.False(t, exhausted)
}

func TestReportFailure_DemotedEndpointIsSkipped(t *testing.T) {
	p, _ := buildHealthyPool(t, endpointA, endpointB, endpointC)

	endpoints := map[protocol.EndpointAddr]*Endpoint{}
	for _, endpoint := range p.endpoints {
		endpoints[endpoint.Addr] = endpoint
	}

	failure := ledgertest.Err(protocol.KindRateLimited)
	for range 3 {
		p.ReportFailure(endpoints[endpointB], failure)
	}

	status := p.Endpoints()[1]
	require.Equal(t, endpointB, status.Addr)
	require.True(t, status.Sanctioned)
	require.Equal(t, protocol.KindRateLimited, status.SanctionReason)

	next, _, err := p.Rotate(endpoints[endpointA])
	require.NoError(t, err)
	require.Equal(t, endpointC, next.Addr)

	// Lifting the demotion on success.
	p.ReportSuccess(endpoints[endpointB], time.Millisecond)
	require.False(t, p.Endpoints()[1].Sanctioned)
}

func TestReportFailure_AllOthersDemoted(t *testing.T) {
	p, _ := buildHealthyPool(t, endpointA, endpointB)

	failure := errors.New("unclassified")
	for range 3 {
		p.ReportFailure(p.endpoints[1], failure)
	}

	next, _, err := p.Rotate(p.endpoints[0])
	require.NoError(t, err)
	require.Equal(t, endpointB, next.Addr)
}

func TestRehydrate_KeepsEndpointsWhenAllFail(t *testing.T) {
	p, transport := buildHealthyPool(t, endpointA, endpointB)

	transport.Handle(endpointA, ledgertest.Failing(protocol.KindTransport))
	transport.Handle(endpointB, ledgertest.Failing(protocol.KindTransport))

	require.ErrorIs(t, p.Rehydrate(context.Background()), protocol.ErrPoolEmpty)
	require.Equal(t, 2, p.Size())
}

func TestRehydrate_KeepsCursorOnSameEndpoint(t *testing.T) {
	p, _ := buildHealthyPool(t, endpointA, endpointB, endpointC)

	first, err := p.Current()
	require.NoError(t, err)
	_, _, err = p.Rotate(first)
	require.NoError(t, err)

	require.NoError(t, p.Rehydrate(context.Background()))

	current, err := p.Current()
	require.NoError(t, err)
	require.Equal(t, endpointB, current.Addr)
}

func TestRotate_AwayFromEndpointHandedOutBeforeRehydrate(t *testing.T) {
	p, _ := buildHealthyPool(t, endpointA, endpointB)

	failed, err := p.Current()
	require.NoError(t, err)
	require.Equal(t, endpointA, failed.Addr)

	// The hydrator replaces the endpoint values while a call on endpointA is in flight.
	require.NoError(t, p.Rehydrate(context.Background()))

	next, _, err := p.Rotate(failed)
	require.NoError(t, err)
	require.Equal(t, endpointB, next.Addr)
}

func TestRehydrate_KeepsFailureCounts(t *testing.T) {
	p, _ := buildHealthyPool(t, endpointA, endpointB)

	failed, err := p.Current()
	require.NoError(t, err)

	failure := ledgertest.Err(protocol.KindTransport)
	p.ReportFailure(failed, failure)
	p.ReportFailure(failed, failure)

	require.NoError(t, p.Rehydrate(context.Background()))
	require.Equal(t, 2, p.Endpoints()[0].ConsecutiveFailures)

	// The third failure, reported against the endpoint handed out before the rehydrate, demotes it.
	p.ReportFailure(failed, failure)
	status := p.Endpoints()[0]
	require.Equal(t, endpointA, status.Addr)
	require.Equal(t, 3, status.ConsecutiveFailures)
	require.True(t, status.Sanctioned)
}

func TestBuild_ResetsFailureCounts(t *testing.T) {
	p, _ := buildHealthyPool(t, endpointA, endpointB)

	failed, err := p.Current()
	require.NoError(t, err)
	p.ReportFailure(failed, ledgertest.Err(protocol.KindTransport))

	require.NoError(t, p.Build(context.Background(), protocol.EndpointAddrList{endpointA, endpointB}, testChainID))
	require.Zero(t, p.Endpoints()[0].ConsecutiveFailures)
}
