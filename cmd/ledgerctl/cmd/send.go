package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/buildwithgrove/ledgerclient/protocol"
	"github.com/buildwithgrove/ledgerclient/txn"
)

// receiptOutput is the printed outcome of a write.
type receiptOutput struct {
	Name        string      `json:"name"`
	Handle      common.Hash `json:"handle"`
	Outcome     string      `json:"outcome"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	GasUsed     uint64      `json:"gas_used,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func newReceiptOutput(name string, handle common.Hash, receipt *txn.Receipt, err error) receiptOutput {
	output := receiptOutput{Name: name, Handle: handle, Outcome: "confirmed"}
	if receipt != nil {
		output.Handle = receipt.Handle
		output.BlockNumber = receipt.BlockNumber
		output.GasUsed = receipt.GasUsed
	}
	if err != nil {
		output.Outcome = string(protocol.KindOf(err))
		output.Error = err.Error()
	}
	return output
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	var (
		rawTx   string
		name    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Submit a signed transaction and wait for its outcome",
		Long: `Submits a signed transaction and monitors it until it is confirmed, reverts,
or the timeout elapses. A timed out write may still be included later: it stays in the
journal and can be picked up again with "ledgerctl resume".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signed, err := hexutil.Decode(rawTx)
			if err != nil {
				return fmt.Errorf("invalid --raw-tx: %w", err)
			}

			c, _, logger, err := opts.newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			logNotifications(ctx, logger, c.Notifications)

			op := txn.Operation{
				Name:   name,
				Signer: txn.SignerFunc(func(context.Context) ([]byte, error) {
					return signed, nil
				}),
			}

			receipt, sendErr := c.Orchestrator.SubmitAndMonitor(ctx, op, timeout)

			var (
				handle   common.Hash
				timedOut *txn.TimedOutError
			)
			if errors.As(sendErr, &timedOut) {
				handle = timedOut.Handle
			}
			if err := printJSON(cmd.OutOrStdout(), newReceiptOutput(name, handle, receipt, sendErr)); err != nil {
				return err
			}
			return sendErr
		},
	}

	cmd.Flags().StringVar(&rawTx, "raw-tx", "", "hex-encoded signed transaction")
	cmd.Flags().StringVar(&name, "name", "write", "name of the write in logs and notifications")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "monitoring timeout (default: the configured default timeout)")
	_ = cmd.MarkFlagRequired("raw-tx")

	return cmd
}
