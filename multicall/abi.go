package multicall

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultAddress is the address Multicall3 is deployed at on most EVM chains.
var DefaultAddress = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

const (
	aggregate3Method    = "aggregate3"
	getEthBalanceMethod = "getEthBalance"
)

// multicall3ABI is the subset of the Multicall3 ABI used for batched reads.
const multicall3ABI = `[{
	"name": "aggregate3",
	"type": "function",
	"stateMutability": "payable",
	"inputs": [{
		"name": "calls",
		"type": "tuple[]",
		"components": [
			{"name": "target", "type": "address"},
			{"name": "allowFailure", "type": "bool"},
			{"name": "callData", "type": "bytes"}
		]
	}],
	"outputs": [{
		"name": "returnData",
		"type": "tuple[]",
		"components": [
			{"name": "success", "type": "bool"},
			{"name": "returnData", "type": "bytes"}
		]
	}]
}, {
	"name": "getEthBalance",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "addr", "type": "address"}],
	"outputs": [{"name": "balance", "type": "uint256"}]
}]`

// Multicall3 is the parsed Multicall3 ABI.
var Multicall3 = mustParseABI(multicall3ABI)

// aggregateCall mirrors the Multicall3 Call3 struct.
type aggregateCall struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// aggregateResult mirrors the Multicall3 Result struct.
type aggregateResult struct {
	Success    bool
	ReturnData []byte
}

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}
