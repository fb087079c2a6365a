// Package txn submits writes to the ledger and monitors them to a terminal outcome.
//
// A write moves through Created, Submitted, Pending and then exactly one of
// ConfirmedSuccess, ConfirmedReverted or TimedOut. Once the ledger returned a handle
// the write is never submitted again by this package: repeating a write is the
// caller's decision.
package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/journal"
	"github.com/buildwithgrove/ledgerclient/metrics"
	"github.com/buildwithgrove/ledgerclient/notify"
	"github.com/buildwithgrove/ledgerclient/pool"
	"github.com/buildwithgrove/ledgerclient/protocol"
	"github.com/buildwithgrove/ledgerclient/retry"
)

// PendingOperation is a submitted write awaiting its outcome.
type PendingOperation = journal.PendingOperation

// Signer is the wallet collaborator producing the signed transaction of a write.
// A Signer whose user declines must return an error wrapping ErrUserRejected.
type Signer interface {
	Sign(ctx context.Context) ([]byte, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context) ([]byte, error)

func (f SignerFunc) Sign(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// Operation is one write requested by the caller.
type Operation struct {
	// Name identifies the write in notifications, logs and metrics, e.g. "stake".
	Name   string
	Signer Signer
}

// HeadSource delivers new block heights. It is satisfied by websockets.HeadSubscriber.
type HeadSource interface {
	SubscribeNewHeads(ctx context.Context) (<-chan uint64, error)
}

// Orchestrator submits and monitors writes. It is safe for concurrent use.
type Orchestrator struct {
	logger   polylog.Logger
	pool     retry.EndpointPool
	executor *retry.Executor
	notifier notify.Notifier
	journal  journal.Journal
	config   Config

	heads HeadSource
}

// NewOrchestrator creates an orchestrator submitting through endpointPool and polling through executor.
// A nil notifier discards notifications and a nil journal keeps pending writes in memory.
func NewOrchestrator(
	logger polylog.Logger,
	endpointPool retry.EndpointPool,
	executor *retry.Executor,
	notifier notify.Notifier,
	pendingJournal journal.Journal,
	config Config,
) *Orchestrator {
	config.HydrateDefaults()

	if notifier == nil {
		notifier = notify.Discard{}
	}
	if pendingJournal == nil {
		pendingJournal = journal.NewMemory()
	}

	return &Orchestrator{
		logger:   logger.With("component", "transaction_orchestrator"),
		pool:     endpointPool,
		executor: executor,
		notifier: notifier,
		journal:  pendingJournal,
		config:   config,
	}
}

// UseHeadSource makes the monitor poll for receipts as soon as a new block is announced,
// in addition to the backoff schedule. It must be called before any write is submitted.
func (o *Orchestrator) UseHeadSource(heads HeadSource) {
	o.heads = heads
}

// SubmitAndMonitor signs op, submits it once and waits for its receipt until timeout elapses.
// The timeout starts once the write is submitted: time spent waiting for the signer does not
// count against it. A zero timeout uses the configured default.
//
// It returns the receipt of a successful write, or an error of kind:
//   - user_cancelled: the signer declined or the caller gave up before submission.
//   - submission_failed (*SubmissionFailedError): the ledger did not accept the write.
//   - reverted (*RevertedError): the write was included and failed.
//   - timed_out (*TimedOutError): the outcome is unknown.
func (o *Orchestrator) SubmitAndMonitor(ctx context.Context, op Operation, timeout time.Duration) (*Receipt, error) {
	if timeout <= 0 {
		timeout = o.config.DefaultTimeout
	}
	requestedAt := time.Now()
	logger := o.logger.With("operation", op.Name)

	o.emit(ctx, op.Name, notify.PhaseUserApproval, requestedAt, common.Hash{}, nil)

	rawTx, err := op.Signer.Sign(ctx)
	if err != nil {
		if errors.Is(err, ErrUserRejected) || errors.Is(err, context.Canceled) {
			err = userCancelled(err)
		} else {
			err = &SubmissionFailedError{Err: fmt.Errorf("signing: %w", err)}
		}
		return nil, o.fail(ctx, logger, op.Name, requestedAt, common.Hash{}, err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		err = &SubmissionFailedError{Err: protocol.NewError(protocol.KindMalformedArgs, "", fmt.Errorf("decoding signed transaction: %w", err))}
		return nil, o.fail(ctx, logger, op.Name, requestedAt, common.Hash{}, err)
	}

	handle, err := o.submit(ctx, logger, tx, rawTx)
	if err != nil {
		return nil, o.fail(ctx, logger, op.Name, requestedAt, common.Hash{}, &SubmissionFailedError{Err: err})
	}

	submittedAt := time.Now()
	pending := PendingOperation{
		Handle:      handle,
		Name:        op.Name,
		SubmittedAt: submittedAt,
		Deadline:    submittedAt.Add(timeout),
		RawTx:       hexutil.Bytes(rawTx),
	}
	if err := o.journal.Record(ctx, pending); err != nil {
		logger.Warn().Err(err).Str("handle", handle.Hex()).Msg("could not journal submitted write")
	}

	logger.Info().Str("handle", handle.Hex()).Msg("write submitted")
	return o.monitor(ctx, logger, pending, requestedAt)
}

// Resume monitors a write submitted earlier, typically read back from the journal after a restart.
// It never submits the write. A zero timeout keeps the operation's recorded deadline.
func (o *Orchestrator) Resume(ctx context.Context, pending PendingOperation, timeout time.Duration) (*Receipt, error) {
	if timeout > 0 {
		pending.Deadline = time.Now().Add(timeout)
	}

	logger := o.logger.With("operation", pending.Name)
	logger.Info().Str("handle", pending.Handle.Hex()).Msg("resuming monitoring of submitted write")
	return o.monitor(ctx, logger, pending, pending.SubmittedAt)
}

// submit sends the signed transaction and returns its handle.
//
// A network-class failure is tried once more on the next endpoint: no handle was returned,
// and a signed transaction always hashes to the same handle, so the second try cannot
// create a second write. Any other failure, or a second failure, is returned.
func (o *Orchestrator) submit(ctx context.Context, logger polylog.Logger, tx *types.Transaction, rawTx []byte) (common.Hash, error) {
	endpoint, err := o.pool.Current()
	if err != nil {
		return common.Hash{}, err
	}

	for try := 1; ; try++ {
		handle, err := o.sendRaw(ctx, endpoint, rawTx)
		if err == nil {
			if handle != tx.Hash() {
				logger.Warn().Str("handle", handle.Hex()).Str("local_hash", tx.Hash().Hex()).Msg("endpoint returned an unexpected handle: using the local hash")
			}
			return tx.Hash(), nil
		}

		if try > 1 || !protocol.IsNetworkError(err) || ctx.Err() != nil {
			// A retried submission the first endpoint did relay may be rejected as already known.
			if try > 1 && o.isKnown(ctx, tx.Hash()) {
				return tx.Hash(), nil
			}
			return common.Hash{}, err
		}

		o.pool.ReportFailure(endpoint, err)
		next, _, rotateErr := o.pool.Rotate(endpoint)
		if rotateErr == nil {
			endpoint = next
		}
		logger.Warn().Err(err).Str("next_host", endpoint.Addr.Host()).Msg("submission failed with a network error: trying once more")
	}
}

func (o *Orchestrator) sendRaw(ctx context.Context, endpoint *pool.Endpoint, rawTx []byte) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.SubmitTimeout)
	defer cancel()

	startTime := time.Now()
	var handle common.Hash
	if err := endpoint.Call(ctx, "eth_sendRawTransaction", []any{hexutil.Bytes(rawTx)}, &handle); err != nil {
		return common.Hash{}, err
	}
	o.pool.ReportSuccess(endpoint, time.Since(startTime))
	return handle, nil
}

// isKnown returns true if the ledger knows the transaction with the given hash.
func (o *Orchestrator) isKnown(ctx context.Context, hash common.Hash) bool {
	ctx, cancel := context.WithTimeout(ctx, o.config.SubmitTimeout)
	defer cancel()

	var tx map[string]any
	if err := o.executor.Call(ctx, "eth_getTransactionByHash", []any{hash}, &tx); err != nil {
		return false
	}
	return tx != nil
}

// emit sends a notification. handle is omitted if it is the zero hash.
func (o *Orchestrator) emit(ctx context.Context, name string, phase notify.Phase, startedAt time.Time, handle common.Hash, err error) {
	notification := notify.Notification{
		OperationName: name,
		Phase:         phase,
		Timestamp:     time.Now(),
		Elapsed:       time.Since(startedAt),
	}
	if handle != (common.Hash{}) {
		notification.Handle = handle.Hex()
	}
	if err != nil {
		notification.ErrorKind = string(protocol.KindOf(err))
		notification.Error = err.Error()
	}
	o.notifier.Notify(ctx, notification)
}

// fail reports a failed write and returns err.
func (o *Orchestrator) fail(ctx context.Context, logger polylog.Logger, name string, startedAt time.Time, handle common.Hash, err error) error {
	kind := protocol.KindOf(err)
	metrics.ObserveTxOutcome(name, kind, time.Since(startedAt))

	event := logger.Warn()
	if kind == protocol.KindUserCancelled {
		event = logger.Info()
	}
	event.Err(err).Str("error_kind", string(kind)).Msg("write failed")

	o.emit(context.WithoutCancel(ctx), name, notify.PhaseFailed, startedAt, handle, err)
	return err
}
