package txn

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt is the inclusion receipt of a write.
type Receipt struct {
	Handle      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	// EffectiveGasPrice is nil if the endpoint did not report it.
	EffectiveGasPrice *big.Int
	Status            uint64
}

// Succeeded returns true if the write was applied.
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// rpcReceipt is the subset of the eth_getTransactionReceipt result used by the orchestrator.
type rpcReceipt struct {
	TransactionHash   common.Hash    `json:"transactionHash"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
	Status            hexutil.Uint64 `json:"status"`
}

func (r *rpcReceipt) toReceipt(handle common.Hash) *Receipt {
	receipt := &Receipt{
		Handle:      handle,
		BlockNumber: uint64(r.BlockNumber),
		GasUsed:     uint64(r.GasUsed),
		Status:      uint64(r.Status),
	}
	if r.EffectiveGasPrice != nil {
		receipt.EffectiveGasPrice = r.EffectiveGasPrice.ToInt()
	}
	return receipt
}
