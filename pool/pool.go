// Package pool maintains the set of admitted ledger endpoints and the shared rotation state.
//
// Every endpoint passes admission checks (chain identity, block height, freshness) before it
// can serve a call. The pool hands out the endpoint at its rotation cursor; callers that
// observe a network-class failure rotate the cursor away from the endpoint that failed.
// Rotations are serialised by the pool's mutex and are compare-and-advance: a caller
// rotating away from an endpoint that another caller already rotated away from is a no-op,
// so concurrent failures on the same endpoint never skip a healthy one.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/health"
	"github.com/buildwithgrove/ledgerclient/metrics"
	"github.com/buildwithgrove/ledgerclient/protocol"
)

// Pool provides the functionality required for health check.
var _ health.Check = &Pool{}

const componentNamePool = "endpoint-pool"

// Pool is the ordered set of admitted endpoints plus a rotation cursor.
// It is safe for concurrent use; one instance is shared by every caller.
type Pool struct {
	logger    polylog.Logger
	transport Transport
	config    Config
	sanctions *sanctionStore

	mu sync.Mutex
	// candidates and chainID are the inputs of the last Build, reused by Rehydrate.
	candidates protocol.EndpointAddrList
	chainID    uint64
	endpoints  []*Endpoint
	// cursor always indexes endpoints, unless endpoints is empty.
	cursor int
	// triedSinceSuccess holds the endpoints rotated away from since the last reported success.
	triedSinceSuccess map[protocol.EndpointAddr]struct{}
	// generation is incremented on every swap of the endpoint set.
	generation uint64
}

// New creates an empty pool. Build must be called before the pool can serve calls.
func New(logger polylog.Logger, transport Transport, config Config) *Pool {
	config.HydrateDefaults()

	return &Pool{
		logger:            logger.With("component", componentNamePool),
		transport:         transport,
		config:            config,
		sanctions:         newSanctionStore(config.SanctionDuration),
		triedSinceSuccess: make(map[protocol.EndpointAddr]struct{}),
	}
}

// Build runs admission against every candidate and replaces the endpoint set wholesale.
// It is also the network-context switch: building with a different chain ID discards
// every endpoint of the previous network.
//
// Admission failures are logged and do not fail the build; Build returns
// protocol.ErrPoolEmpty only if no candidate was admitted.
func (p *Pool) Build(ctx context.Context, candidates protocol.EndpointAddrList, expectedChainID uint64) error {
	p.logger.Info().Msgf("building endpoint pool from %d candidates for chain ID %d", len(candidates), expectedChainID)

	admitted := p.admit(ctx, candidates, expectedChainID)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.candidates = candidates
	p.chainID = expectedChainID
	p.swapLocked(admitted, false)

	if len(admitted) == 0 {
		p.logger.Error().Msg("no endpoint passed admission checks")
		return protocol.ErrPoolEmpty
	}

	return nil
}

// Rehydrate re-runs admission with the inputs of the last Build.
// Unlike Build, an empty admission result keeps the current endpoint set:
// a transient outage of every endpoint should not empty a working pool.
func (p *Pool) Rehydrate(ctx context.Context) error {
	p.mu.Lock()
	candidates, chainID := p.candidates, p.chainID
	p.mu.Unlock()

	if len(candidates) == 0 {
		return protocol.ErrPoolEmpty
	}

	admitted := p.admit(ctx, candidates, chainID)
	if len(admitted) == 0 {
		p.logger.Warn().Msg("no endpoint passed re-admission checks: keeping the current endpoint set")
		return protocol.ErrPoolEmpty
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// A concurrent Build for another network wins over a stale re-admission.
	if p.chainID != chainID {
		return nil
	}

	p.swapLocked(admitted, true)
	return nil
}

// swapLocked replaces the endpoint set, keeping the cursor on the same endpoint address if it is still admitted.
// With carryOver, the failure counts of endpoints that stay admitted and the endpoints tried since the
// last success survive the swap.
func (p *Pool) swapLocked(admitted []*Endpoint, carryOver bool) {
	var currentAddr protocol.EndpointAddr
	if len(p.endpoints) > 0 {
		currentAddr = p.endpoints[p.cursor].Addr
	}

	previous := make(map[protocol.EndpointAddr]*Endpoint, len(p.endpoints))
	for _, endpoint := range p.endpoints {
		previous[endpoint.Addr] = endpoint
	}

	tried := make(map[protocol.EndpointAddr]struct{})
	p.cursor = 0
	for i, endpoint := range admitted {
		if endpoint.Addr == currentAddr {
			p.cursor = i
		}
		if !carryOver {
			continue
		}
		if old, ok := previous[endpoint.Addr]; ok {
			endpoint.consecutiveFailures = old.consecutiveFailures
		}
		if _, ok := p.triedSinceSuccess[endpoint.Addr]; ok {
			tried[endpoint.Addr] = struct{}{}
		}
	}

	p.endpoints = admitted
	p.triedSinceSuccess = tried
	p.generation++
	metrics.SetAdmittedEndpoints(len(admitted))
}

// Current returns the endpoint at the rotation cursor.
func (p *Pool) Current() (*Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil, protocol.ErrPoolEmpty
	}
	return p.endpoints[p.cursor], nil
}

// Rotate moves the cursor away from the endpoint `from`, which the caller observed failing,
// and returns the endpoint now at the cursor.
//
// The cursor only advances if it still points at `from`: if another caller already rotated
// away from it, Rotate returns the current endpoint unchanged. The next endpoint is the first
// one after the cursor that is not sanctioned; if every other endpoint is sanctioned the cursor
// still advances by one. The same endpoint is never selected twice in a row unless it is the
// only admitted one.
//
// exhausted is true once every admitted endpoint has been rotated away from since the last
// reported success.
func (p *Pool) Rotate(from *Endpoint) (next *Endpoint, exhausted bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil, false, protocol.ErrPoolEmpty
	}

	if from != nil {
		p.triedSinceSuccess[from.Addr] = struct{}{}
	}

	// Endpoints are compared by address: a rehydrate replaces the *Endpoint values.
	advanced := false
	if from != nil && from.Addr == p.endpoints[p.cursor].Addr && len(p.endpoints) > 1 {
		p.cursor = p.nextCursorLocked()
		advanced = true
	}
	metrics.ObserveRotation(advanced)

	exhausted = true
	for _, endpoint := range p.endpoints {
		if _, tried := p.triedSinceSuccess[endpoint.Addr]; !tried {
			exhausted = false
			break
		}
	}

	next = p.endpoints[p.cursor]
	if advanced {
		p.logger.Debug().
			Str("from_host", from.Addr.Host()).
			Str("to_host", next.Addr.Host()).
			Msg("rotated endpoint")
	}

	return next, exhausted, nil
}

// nextCursorLocked returns the index of the first non-sanctioned endpoint after the cursor,
// or the index right after the cursor if every other endpoint is sanctioned.
func (p *Pool) nextCursorLocked() int {
	n := len(p.endpoints)
	for step := 1; step < n; step++ {
		idx := (p.cursor + step) % n
		if sanctioned, _ := p.sanctions.isSanctioned(p.endpoints[idx].Addr); !sanctioned {
			return idx
		}
	}
	return (p.cursor + 1) % n
}

// ReportSuccess records a successful call: it resets the endpoint's failure count,
// lifts any demotion, and resets the set of endpoints tried since the last success.
func (p *Pool) ReportSuccess(endpoint *Endpoint, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	endpoint = p.admittedLocked(endpoint)
	endpoint.lastLatency = latency
	endpoint.consecutiveFailures = 0
	p.sanctions.remove(endpoint.Addr)
	if len(p.triedSinceSuccess) > 0 {
		p.triedSinceSuccess = make(map[protocol.EndpointAddr]struct{})
	}
}

// ReportFailure records a network-class failure of a call.
// Reaching MaxConsecutiveFailures demotes the endpoint for SanctionDuration: rotation skips it
// while any non-demoted endpoint remains.
func (p *Pool) ReportFailure(endpoint *Endpoint, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	endpoint = p.admittedLocked(endpoint)
	endpoint.consecutiveFailures++
	if endpoint.consecutiveFailures < p.config.MaxConsecutiveFailures {
		return
	}

	kind := protocol.KindOf(err)
	p.sanctions.add(endpoint.Addr, kind)
	metrics.ObserveSanction(endpoint.Addr.Host())

	p.logger.Warn().
		Err(err).
		Str("endpoint_host", endpoint.Addr.Host()).
		Int("consecutive_failures", endpoint.consecutiveFailures).
		Msgf("endpoint demoted for %s", p.config.SanctionDuration)
}

// admittedLocked returns the admitted endpoint with the address of endpoint, which may have been
// handed out before the last swap. Endpoints no longer admitted are returned unchanged.
func (p *Pool) admittedLocked(endpoint *Endpoint) *Endpoint {
	for _, admitted := range p.endpoints {
		if admitted.Addr == endpoint.Addr {
			return admitted
		}
	}
	return endpoint
}

// Endpoints returns a snapshot of every admitted endpoint, in rotation order.
func (p *Pool) Endpoints() []EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]EndpointStatus, len(p.endpoints))
	for i, endpoint := range p.endpoints {
		sanctioned, reason := p.sanctions.isSanctioned(endpoint.Addr)
		statuses[i] = EndpointStatus{
			Addr:                endpoint.Addr,
			LastLatency:         endpoint.lastLatency,
			LastChainID:         endpoint.lastChainID,
			LastHeight:          endpoint.lastHeight,
			ConsecutiveFailures: endpoint.consecutiveFailures,
			Sanctioned:          sanctioned,
			SanctionReason:      reason,
			Current:             i == p.cursor,
		}
	}
	return statuses
}

// Size returns the number of admitted endpoints.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// ChainID returns the chain ID of the last Build.
func (p *Pool) ChainID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

// Generation identifies the current endpoint set. It changes on every Build and Rehydrate.
func (p *Pool) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Name returns the name of the component being checked.
func (p *Pool) Name() string {
	return componentNamePool
}

// IsAlive returns true if at least one endpoint is admitted.
func (p *Pool) IsAlive() bool {
	return p.Size() > 0
}
