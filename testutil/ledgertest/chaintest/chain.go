// Package chaintest fakes a ledger with deployed contracts and the Multicall3
// aggregate facility, served through a ledgertest.Handler.
package chaintest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/buildwithgrove/ledgerclient/multicall"
	"github.com/buildwithgrove/ledgerclient/protocol"
	"github.com/buildwithgrove/ledgerclient/qos/jsonrpc"
	"github.com/buildwithgrove/ledgerclient/testutil/ledgertest"
)

// Contract answers the calldata of a call to its address.
// reverted reports a revert, in which case returnData is the revert data.
type Contract func(callData []byte) (returnData []byte, reverted bool)

// Chain is an in-memory ledger answering identity, height, eth_getCode and eth_call.
// Extra methods can be answered with HandleMethod.
type Chain struct {
	chainID uint64
	height  atomic.Uint64

	mu                sync.Mutex
	contracts         map[common.Address]Contract
	multicallAddress  common.Address
	multicallDeployed bool
	methods           map[string]ledgertest.Handler
}

func NewChain(chainID, height uint64) *Chain {
	chain := &Chain{
		chainID:          chainID,
		contracts:        make(map[common.Address]Contract),
		multicallAddress: multicall.DefaultAddress,
		methods:          make(map[string]ledgertest.Handler),
	}
	chain.height.Store(height)
	return chain
}

// Deploy installs contract at address.
func (c *Chain) Deploy(address common.Address, contract Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[address] = contract
}

// DeployMulticall installs the Multicall3 aggregate facility at its default address.
func (c *Chain) DeployMulticall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.multicallDeployed = true
}

// HandleMethod answers method with handler.
func (c *Chain) HandleMethod(method string, handler ledgertest.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[method] = handler
}

// SetHeight sets the block height reported by eth_blockNumber.
func (c *Chain) SetHeight(height uint64) {
	c.height.Store(height)
}

// Handler returns the handler serving the chain. Several endpoints may share it.
func (c *Chain) Handler() ledgertest.Handler {
	return func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		switch method {
		case "eth_chainId":
			return hexutil.Uint64(c.chainID), nil
		case "eth_blockNumber":
			return hexutil.Uint64(c.height.Load()), nil
		case "eth_getCode":
			return c.getCode(params)
		case "eth_call":
			return c.call(params)
		}

		c.mu.Lock()
		handler, ok := c.methods[method]
		c.mu.Unlock()
		if !ok {
			return nil, ledgertest.Err(protocol.KindMethodUnavailable)
		}
		return handler(ctx, method, params)
	}
}

func (c *Chain) getCode(params json.RawMessage) (any, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, ledgertest.Err(protocol.KindMalformedArgs)
	}

	var address common.Address
	if err := json.Unmarshal(args[0], &address); err != nil {
		return nil, ledgertest.Err(protocol.KindMalformedArgs)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, deployed := c.contracts[address]
	if deployed || (c.multicallDeployed && address == c.multicallAddress) {
		return hexutil.Bytes{0x60, 0x80, 0x60, 0x40}, nil
	}
	return hexutil.Bytes{}, nil
}

type callArgs struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Input hexutil.Bytes  `json:"input"`
}

func (c *Chain) call(params json.RawMessage) (any, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, ledgertest.Err(protocol.KindMalformedArgs)
	}

	var call callArgs
	if err := json.Unmarshal(args[0], &call); err != nil {
		return nil, ledgertest.Err(protocol.KindMalformedArgs)
	}
	data := call.Data
	if len(data) == 0 {
		data = call.Input
	}

	c.mu.Lock()
	isMulticall := c.multicallDeployed && call.To == c.multicallAddress
	contract := c.contracts[call.To]
	c.mu.Unlock()

	if isMulticall {
		return c.aggregate(data)
	}

	// A call to an address without code succeeds with no return data.
	if contract == nil {
		return hexutil.Bytes{}, nil
	}

	returnData, reverted := contract(data)
	if reverted {
		return nil, RevertErr(returnData)
	}
	return hexutil.Bytes(returnData), nil
}

func (c *Chain) aggregate(data []byte) (any, error) {
	selector := multicall.Multicall3.Methods["aggregate3"].ID
	if len(data) < 4 || !bytes.Equal(data[:4], selector) {
		return nil, RevertErr(nil)
	}

	targets, callData, err := multicall.DecodeAggregateCalls(data[4:])
	if err != nil {
		return nil, RevertErr(nil)
	}

	results := make([]multicall.Result, len(targets))
	for i, target := range targets {
		c.mu.Lock()
		contract := c.contracts[target]
		c.mu.Unlock()

		if contract == nil {
			results[i] = multicall.Result{Success: true}
			continue
		}

		returnData, reverted := contract(callData[i])
		results[i] = multicall.Result{Success: !reverted, ReturnData: returnData}
	}

	encoded, err := multicall.EncodeAggregateResults(results)
	if err != nil {
		return nil, fmt.Errorf("chaintest: encoding aggregate results: %w", err)
	}
	return hexutil.Bytes(encoded), nil
}

// RevertErr is the error a node answers a reverted eth_call with.
func RevertErr(revertData []byte) error {
	return protocol.NewError(protocol.KindExecutionReverted, "", &jsonrpc.ResponseError{
		Code:    jsonrpc.CodeExecutionRevertedGeth,
		Message: "execution reverted",
		Data:    hexutil.Encode(revertData),
	})
}

// RevertReason ABI-encodes reason as Error(string) revert data.
func RevertReason(reason string) []byte {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	// Error(string) selector.
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}
