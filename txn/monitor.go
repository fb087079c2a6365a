package txn

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/metrics"
	"github.com/buildwithgrove/ledgerclient/notify"
	"github.com/buildwithgrove/ledgerclient/qos/jsonrpc"
	"github.com/buildwithgrove/ledgerclient/retry"
)

// monitor waits for the receipt of a submitted write until its deadline.
//
// Receipt lookups are reads: a failed lookup is logged and polling goes on, the write is
// never submitted again. A receipt observed before the deadline is always resolved, even
// if the deadline passes while it is being resolved.
func (o *Orchestrator) monitor(ctx context.Context, logger polylog.Logger, pending PendingOperation, startedAt time.Time) (*Receipt, error) {
	logger = logger.With("handle", pending.Handle.Hex())
	o.emit(ctx, pending.Name, notify.PhaseProcessing, startedAt, pending.Handle, nil)

	waitCtx, cancel := context.WithDeadline(ctx, pending.Deadline)
	defer cancel()

	progressCtx, cancelProgress := context.WithCancel(waitCtx)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		o.reportProgress(progressCtx, pending, startedAt)
	}()
	// stopProgress ensures no processing notification follows the terminal one.
	stopProgress := func() {
		cancelProgress()
		<-progressDone
	}

	heads := o.subscribeHeads(waitCtx, logger)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.config.PollInitialInterval
	b.MaxInterval = o.config.PollMaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	for polls := 1; ; polls++ {
		receipt, err := o.fetchReceipt(waitCtx, pending.Handle)
		if receipt != nil {
			logger.Debug().Int("polls", polls).Msg("receipt observed")
			stopProgress()
			return o.resolve(ctx, logger, pending, startedAt, receipt)
		}
		if err != nil && waitCtx.Err() == nil {
			logger.Warn().Err(err).Msg("receipt lookup failed: polling again")
		}

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-waitCtx.Done():
			timer.Stop()
			stopProgress()
			return o.expire(ctx, logger, pending, startedAt)
		case <-timer.C:
		case _, ok := <-heads:
			timer.Stop()
			if !ok {
				heads = nil
			}
		}
	}
}

// expire makes one last receipt lookup and, if there is still none, reports a timeout.
func (o *Orchestrator) expire(ctx context.Context, logger polylog.Logger, pending PendingOperation, startedAt time.Time) (*Receipt, error) {
	if ctx.Err() == nil {
		checkCtx, cancel := context.WithTimeout(ctx, o.config.FinalCheckTimeout)
		receipt, _ := o.fetchReceipt(checkCtx, pending.Handle)
		cancel()
		if receipt != nil {
			return o.resolve(ctx, logger, pending, startedAt, receipt)
		}
	}

	// The write stays journaled: its outcome is still unknown.
	err := &TimedOutError{Handle: pending.Handle, Deadline: pending.Deadline, Err: ctx.Err()}
	return nil, o.fail(ctx, logger, pending.Name, startedAt, pending.Handle, err)
}

// resolve turns an observed receipt into the terminal outcome of the write.
func (o *Orchestrator) resolve(ctx context.Context, logger polylog.Logger, pending PendingOperation, startedAt time.Time, receipt *Receipt) (*Receipt, error) {
	// The outcome is terminal whatever the caller's context state.
	ctx = context.WithoutCancel(ctx)

	if err := o.journal.Remove(ctx, pending.Handle); err != nil {
		logger.Warn().Err(err).Msg("could not remove resolved write from the journal")
	}

	if receipt.Succeeded() {
		metrics.ObserveTxOutcome(pending.Name, "", time.Since(startedAt))
		logger.Info().Uint64("block", receipt.BlockNumber).Uint64("gas_used", receipt.GasUsed).Msg("write confirmed")
		o.emit(ctx, pending.Name, notify.PhaseConfirmed, startedAt, pending.Handle, nil)
		return receipt, nil
	}

	err := &RevertedError{
		Receipt: receipt,
		Reason:  o.revertReason(ctx, logger, pending.RawTx, receipt.BlockNumber),
	}
	return receipt, o.fail(ctx, logger, pending.Name, startedAt, pending.Handle, err)
}

// fetchReceipt returns the receipt of the write, or nil while it is pending.
func (o *Orchestrator) fetchReceipt(ctx context.Context, handle common.Hash) (*Receipt, error) {
	var result *rpcReceipt
	if err := o.executor.Call(ctx, "eth_getTransactionReceipt", []any{handle}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.toReceipt(handle), nil
}

// replayArgs are the eth_call arguments replaying a transaction.
type replayArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Gas   hexutil.Uint64  `json:"gas"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
}

// missingBlockState reports a server error answering a call at a past block. Nodes answer
// with it when they have pruned the block's state or have not reached the block yet, so
// another endpoint may serve the call.
func missingBlockState(err error) bool {
	return jsonrpc.HasCode(err, jsonrpc.CodeInvalidInput)
}

// revertReason replays the reverted transaction at its block to recover its revert reason.
// It returns an empty reason if the transaction cannot be replayed or the replay does not revert.
func (o *Orchestrator) revertReason(ctx context.Context, logger polylog.Logger, rawTx hexutil.Bytes, blockNumber uint64) string {
	if len(rawTx) == 0 {
		return ""
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return ""
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.SubmitTimeout)
	defer cancel()

	args := replayArgs{
		From:  from,
		To:    tx.To(),
		Gas:   hexutil.Uint64(tx.Gas()),
		Value: (*hexutil.Big)(tx.Value()),
		Data:  tx.Data(),
	}
	err = o.executor.Call(ctx, "eth_call", []any{args, hexutil.EncodeUint64(blockNumber)}, nil, retry.WithRetryIf(missingBlockState))
	if err == nil {
		return ""
	}

	revertData, ok := jsonrpc.RevertDataOf(err)
	if !ok {
		logger.Debug().Err(err).Msg("could not replay reverted write")
		return ""
	}
	reason, err := abi.UnpackRevert(revertData)
	if err != nil {
		return fmt.Sprintf("custom error 0x%x", revertData)
	}
	return reason
}

// reportProgress emits a processing notification every ProgressInterval until ctx is done.
func (o *Orchestrator) reportProgress(ctx context.Context, pending PendingOperation, startedAt time.Time) {
	ticker := time.NewTicker(o.config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.emit(ctx, pending.Name, notify.PhaseProcessing, startedAt, pending.Handle, nil)
		}
	}
}

// subscribeHeads returns the new heads channel, or nil if no head source is used or the subscription failed.
func (o *Orchestrator) subscribeHeads(ctx context.Context, logger polylog.Logger) <-chan uint64 {
	if o.heads == nil {
		return nil
	}

	heads, err := o.heads.SubscribeNewHeads(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not subscribe to new heads: polling on the backoff schedule only")
		return nil
	}
	return heads
}
