package txn

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/buildwithgrove/ledgerclient/protocol"
)

// ErrUserRejected is returned, possibly wrapped, by a Signer whose user declined to sign.
var ErrUserRejected = errors.New("user rejected the operation")

// RevertedError is a write included by the ledger with a failure status.
// Its effects were rolled back; it will not succeed by waiting longer.
type RevertedError struct {
	Receipt *Receipt
	// Reason is the decoded revert reason, if the reverted call could be replayed.
	Reason string
}

func (e *RevertedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted in block %d", e.Receipt.Handle, e.Receipt.BlockNumber)
	}
	return fmt.Sprintf("transaction %s reverted in block %d: %s", e.Receipt.Handle, e.Receipt.BlockNumber, e.Reason)
}

func (e *RevertedError) ErrorKind() protocol.ErrorKind {
	return protocol.KindReverted
}

// TimedOutError means the client stopped waiting for a submitted write.
// The outcome is unknown: the write may still be included after the deadline.
type TimedOutError struct {
	Handle   common.Hash
	Deadline time.Time
	// Err is set if monitoring stopped because the caller's context was done.
	Err error
}

func (e *TimedOutError) Error() string {
	return fmt.Sprintf("stopped waiting for transaction %s at %s: outcome unknown, it may still be included",
		e.Handle, e.Deadline.Format(time.RFC3339))
}

func (e *TimedOutError) Unwrap() error {
	return e.Err
}

func (e *TimedOutError) ErrorKind() protocol.ErrorKind {
	return protocol.KindTimedOut
}

// SubmissionFailedError means the ledger did not accept the write. Nothing was submitted.
type SubmissionFailedError struct {
	Err error
}

func (e *SubmissionFailedError) Error() string {
	return fmt.Sprintf("submission failed: %v", e.Err)
}

func (e *SubmissionFailedError) Unwrap() error {
	return e.Err
}

func (e *SubmissionFailedError) ErrorKind() protocol.ErrorKind {
	return protocol.KindSubmissionFailed
}

func userCancelled(err error) error {
	return protocol.NewError(protocol.KindUserCancelled, "", err)
}
