// Package multicall batches independent contract reads into one Multicall3 aggregate3 call.
//
// Every call of a batch is sent with allowFailure set, so one failing call never affects
// its siblings. If the aggregate facility is unusable (not deployed, failing, or answering
// with a malformed response), Batch returns a nil slice and the caller falls back to
// individual reads, which ReadAll does on its own.
package multicall

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/metrics"
	"github.com/buildwithgrove/ledgerclient/protocol"
	"github.com/buildwithgrove/ledgerclient/qos/jsonrpc"
	"github.com/buildwithgrove/ledgerclient/retry"
)

const (
	defaultMaxCallsPerBatch = 200

	pathAggregate   = "aggregate"
	pathUnavailable = "unavailable"
	pathFallback    = "fallback"
)

type Config struct {
	// Address of the Multicall3 contract. Defaults to DefaultAddress.
	Address string `yaml:"address"`
	// MaxCallsPerBatch splits larger batches into several aggregate calls.
	MaxCallsPerBatch int `yaml:"max_calls_per_batch"`
	// Disabled skips aggregation: every read is sent individually.
	Disabled bool `yaml:"disabled"`
}

func (c *Config) HydrateDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress.Hex()
	}
	if c.MaxCallsPerBatch <= 0 {
		c.MaxCallsPerBatch = defaultMaxCallsPerBatch
	}
}

func (c Config) Validate() error {
	if !common.IsHexAddress(c.Address) {
		return fmt.Errorf("invalid multicall address %q", c.Address)
	}
	return nil
}

// GenerationSource identifies the current endpoint set, e.g. a pool.Pool.
// Facility detection is re-run whenever the generation changes.
type GenerationSource interface {
	Generation() uint64
}

// Reader issues batched reads through a retry executor.
type Reader struct {
	logger           polylog.Logger
	executor         *retry.Executor
	generations      GenerationSource
	address          common.Address
	maxCallsPerBatch int
	disabled         bool

	mu                  sync.Mutex
	availabilityKnown   bool
	availableGeneration uint64
	available           bool
}

func NewReader(logger polylog.Logger, executor *retry.Executor, generations GenerationSource, config Config) *Reader {
	config.HydrateDefaults()

	return &Reader{
		logger:           logger.With("component", "batch_reader"),
		executor:         executor,
		generations:      generations,
		address:          common.HexToAddress(config.Address),
		maxCallsPerBatch: config.MaxCallsPerBatch,
		disabled:         config.Disabled,
	}
}

// EthBalanceCall returns the call reading the native balance of owner through the facility itself.
// It can only be batched: the fallback of ReadAll cannot serve it when the facility is not deployed.
func (r *Reader) EthBalanceCall(owner common.Address) (Call, error) {
	return NewCall(r.address, Multicall3, getEthBalanceMethod, owner)
}

// Batch runs every call in aggregate calls and returns one result per call, in call order.
//
// It returns a nil slice, and no error, if the aggregate facility is unusable. The only
// error returned is the caller's context error.
func (r *Reader) Batch(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return []Result{}, nil
	}

	if !r.Available(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		metrics.ObserveBatchRead(pathUnavailable, len(calls))
		return nil, nil
	}

	results := make([]Result, len(calls))
	for start := 0; start < len(calls); start += r.maxCallsPerBatch {
		end := min(start+r.maxCallsPerBatch, len(calls))

		ok, err := r.aggregate(ctx, calls[start:end], results[start:end])
		if err != nil {
			return nil, err
		}
		if !ok {
			metrics.ObserveBatchRead(pathUnavailable, len(calls))
			return nil, nil
		}
	}

	metrics.ObserveBatchRead(pathAggregate, len(calls))
	return results, nil
}

// ReadAll is Batch, falling back to one read per call if the aggregate facility is unusable.
// Either way the results have the same shape.
func (r *Reader) ReadAll(ctx context.Context, calls []Call) ([]Result, error) {
	results, err := r.Batch(ctx, calls)
	if err != nil || results != nil {
		return results, err
	}

	r.logger.Debug().Int("calls", len(calls)).Msg("aggregate facility unusable: reading calls individually")

	results = make([]Result, len(calls))
	for i, call := range calls {
		result, err := r.readOne(ctx, call)
		if err != nil {
			return nil, err
		}
		results[i] = result
	}

	metrics.ObserveBatchRead(pathFallback, len(calls))
	return results, nil
}

// Available reports whether the aggregate facility is deployed, as seen by the current endpoint set.
// A failed detection is not remembered: the next call detects again.
func (r *Reader) Available(ctx context.Context) bool {
	if r.disabled {
		return false
	}

	generation := r.generations.Generation()

	r.mu.Lock()
	if r.availabilityKnown && r.availableGeneration == generation {
		available := r.available
		r.mu.Unlock()
		return available
	}
	r.mu.Unlock()

	var code hexutil.Bytes
	if err := r.executor.Call(ctx, "eth_getCode", []any{r.address, "latest"}, &code); err != nil {
		r.logger.Warn().Err(err).Msg("could not detect the aggregate facility")
		return false
	}

	available := len(code) > 0
	if !available {
		r.logger.Info().Str("address", r.address.Hex()).Msg("no aggregate facility deployed")
	}

	r.mu.Lock()
	r.availabilityKnown = true
	r.availableGeneration = generation
	r.available = available
	r.mu.Unlock()

	return available
}

// aggregate runs calls in a single aggregate call and writes their results to out.
// It returns false if the aggregate facility failed.
func (r *Reader) aggregate(ctx context.Context, calls []Call, out []Result) (bool, error) {
	var (
		aggregateCalls []aggregateCall
		slots          []int
	)
	for i, call := range calls {
		callData, err := call.Encode()
		if err != nil {
			out[i] = Result{err: err}
			continue
		}
		aggregateCalls = append(aggregateCalls, aggregateCall{
			Target:       call.Target,
			AllowFailure: true,
			CallData:     callData,
		})
		slots = append(slots, i)
	}

	if len(aggregateCalls) == 0 {
		return true, nil
	}

	data, err := Multicall3.Pack(aggregate3Method, aggregateCalls)
	if err != nil {
		r.logger.Error().Err(err).Msg("could not encode aggregate call")
		return false, nil
	}

	returnData, err := ethCall(ctx, r.executor, r.address, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		r.logger.Warn().Err(err).Int("calls", len(aggregateCalls)).Msg("aggregate call failed")
		return false, nil
	}

	decoded, err := DecodeAggregate(returnData)
	if err == nil && len(decoded) != len(aggregateCalls) {
		err = fmt.Errorf("got %d results for %d calls", len(decoded), len(aggregateCalls))
	}
	if err != nil {
		r.logger.Warn().Err(err).Msg("malformed aggregate response")
		return false, nil
	}

	for j, result := range decoded {
		out[slots[j]] = result
	}
	return true, nil
}

// readOne runs one call on its own. Only the caller's context error is returned as an error:
// any other failure is recorded in the result.
func (r *Reader) readOne(ctx context.Context, call Call) (Result, error) {
	callData, err := call.Encode()
	if err != nil {
		return Result{err: err}, nil
	}

	returnData, err := ethCall(ctx, r.executor, call.Target, callData)
	switch {
	case err == nil:
		return Result{Success: true, ReturnData: returnData}, nil
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	case protocol.KindOf(err) == protocol.KindExecutionReverted:
		revertData, _ := jsonrpc.RevertDataOf(err)
		return Result{ReturnData: revertData}, nil
	default:
		return Result{err: err}, nil
	}
}

// DecodeAggregate decodes the return data of an aggregate3 call into one result per call.
func DecodeAggregate(returnData []byte) (results []Result, err error) {
	// Malformed input must not take the caller down.
	defer func() {
		if recovered := recover(); recovered != nil {
			results, err = nil, fmt.Errorf("decoding aggregate3 response: %v", recovered)
		}
	}()

	var decoded []aggregateResult
	if err := Multicall3.UnpackIntoInterface(&decoded, aggregate3Method, returnData); err != nil {
		return nil, fmt.Errorf("decoding aggregate3 response: %w", err)
	}

	results = make([]Result, len(decoded))
	for i, result := range decoded {
		results[i] = Result{Success: result.Success, ReturnData: result.ReturnData}
	}
	return results, nil
}

// EncodeAggregateResults encodes results as the return data of an aggregate3 call.
func EncodeAggregateResults(results []Result) ([]byte, error) {
	encoded := make([]aggregateResult, len(results))
	for i, result := range results {
		encoded[i] = aggregateResult{Success: result.Success, ReturnData: result.ReturnData}
	}
	return Multicall3.Methods[aggregate3Method].Outputs.Pack(encoded)
}

// DecodeAggregateCalls decodes the calldata of an aggregate3 call, without its selector.
func DecodeAggregateCalls(args []byte) (targets []common.Address, callData [][]byte, err error) {
	var calls []aggregateCall
	unpacked, err := Multicall3.Methods[aggregate3Method].Inputs.Unpack(args)
	if err != nil {
		return nil, nil, err
	}
	if err := Multicall3.Methods[aggregate3Method].Inputs.Copy(&calls, unpacked); err != nil {
		return nil, nil, err
	}

	for _, call := range calls {
		targets = append(targets, call.Target)
		callData = append(callData, call.CallData)
	}
	return targets, callData, nil
}

// callArgs are the eth_call transaction arguments of a read.
type callArgs struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

func ethCall(ctx context.Context, executor *retry.Executor, to common.Address, data []byte) ([]byte, error) {
	var returnData hexutil.Bytes
	if err := executor.Call(ctx, "eth_call", []any{callArgs{To: to, Data: data}, "latest"}, &returnData); err != nil {
		return nil, err
	}
	return returnData, nil
}
