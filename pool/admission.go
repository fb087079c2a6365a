package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/buildwithgrove/ledgerclient/metrics"
	"github.com/buildwithgrove/ledgerclient/network/concurrency"
	"github.com/buildwithgrove/ledgerclient/protocol"
)

var errWrongChainID = errors.New("endpoint reports a different chain ID")

// candidateCheck is the outcome of the admission checks of one candidate.
type candidateCheck struct {
	addr    protocol.EndpointAddr
	chainID uint64
	height  uint64
	latency time.Duration
	// reason is empty if the candidate passed the identity checks.
	reason protocol.ErrorKind
	err    error
}

// admit runs the admission checks of every candidate concurrently and returns the
// admitted endpoints in configuration order.
//
// A candidate is admitted if, within its time budget, it reports the expected chain ID
// and its current block height, and that height is within SyncAllowance blocks of the
// highest height reported by any candidate.
func (p *Pool) admit(ctx context.Context, candidates protocol.EndpointAddrList, expectedChainID uint64) []*Endpoint {
	checks := make([]candidateCheck, len(candidates))

	var wg sync.WaitGroup
	for i, addr := range candidates {
		wg.Add(1)
		go func(i int, addr protocol.EndpointAddr) {
			defer wg.Done()
			checks[i] = p.checkCandidate(ctx, addr, expectedChainID)
		}(i, addr)
	}
	wg.Wait()

	var maxHeight uint64
	for _, check := range checks {
		if check.reason == "" && check.height > maxHeight {
			maxHeight = check.height
		}
	}

	var admitted []*Endpoint
	for _, check := range checks {
		if check.reason == "" && check.height+p.config.SyncAllowance < maxHeight {
			check.reason = protocol.KindStale
			check.err = fmt.Errorf("endpoint height %d is more than %d blocks behind %d", check.height, p.config.SyncAllowance, maxHeight)
		}

		logger := p.logger.With(
			"endpoint_host", check.addr.Host(),
			"latency_ms", check.latency.Milliseconds(),
		)
		metrics.ObserveAdmission(check.reason)

		if check.reason != "" {
			logger.Warn().Err(check.err).Str("reason", string(check.reason)).Msg("endpoint rejected at admission")
			continue
		}

		logger.Info().Msgf("endpoint admitted at height %d", check.height)
		admitted = append(admitted, &Endpoint{
			Addr:        check.addr,
			transport:   p.transport,
			lastLatency: check.latency,
			lastChainID: check.chainID,
			lastHeight:  check.height,
		})
	}

	return admitted
}

// checkCandidate fetches the chain ID then the block height of a candidate,
// under a budget that depends on whether the candidate is local.
func (p *Pool) checkCandidate(ctx context.Context, addr protocol.EndpointAddr, expectedChainID uint64) candidateCheck {
	budget := p.config.RemoteAdmissionTimeout
	if addr.IsLocal() {
		budget = p.config.LocalAdmissionTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	startTime := time.Now()
	check, err := concurrency.RunWithContext(ctx, func(ctx context.Context) (candidateCheck, error) {
		check := candidateCheck{addr: addr}

		var chainID hexutil.Uint64
		if err := p.transport.Call(ctx, addr, "eth_chainId", nil, &chainID); err != nil {
			return check, err
		}
		check.chainID = uint64(chainID)

		if check.chainID != expectedChainID {
			return check, protocol.NewError(
				protocol.KindWrongIdentity,
				addr,
				fmt.Errorf("%w: got %d, expected %d", errWrongChainID, check.chainID, expectedChainID),
			)
		}

		var height hexutil.Uint64
		if err := p.transport.Call(ctx, addr, "eth_blockNumber", nil, &height); err != nil {
			return check, err
		}
		check.height = uint64(height)

		return check, nil
	})

	check.addr = addr
	check.latency = time.Since(startTime)
	if err != nil {
		check.reason = protocol.KindOf(err)
		check.err = err
	}

	return check
}
