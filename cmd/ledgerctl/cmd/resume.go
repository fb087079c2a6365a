package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildwithgrove/ledgerclient/client"
)

func newResumeCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume monitoring of journaled writes",
		Long: `Reads every write still pending in the journal, e.g. after a timed out send or a
restart, and monitors each until it resolves or its deadline passes. Writes are never
submitted again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, logger, err := opts.newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			logNotifications(ctx, logger, c.Notifications)

			outputs, err := resumePending(ctx, c, timeout)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), outputs); err != nil {
				return err
			}

			if failed := countFailed(outputs); failed > 0 {
				return fmt.Errorf("%d of %d resumed writes did not confirm", failed, len(outputs))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "monitoring timeout from now (default: each write's recorded deadline)")

	return cmd
}

// resumePending monitors every journaled write concurrently and returns their outcomes in journal order.
func resumePending(ctx context.Context, c *client.Client, timeout time.Duration) ([]receiptOutput, error) {
	pending, err := c.Journal.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending writes: %w", err)
	}

	outputs := make([]receiptOutput, len(pending))
	var wg sync.WaitGroup
	for i, op := range pending {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipt, err := c.Orchestrator.Resume(ctx, op, timeout)
			outputs[i] = newReceiptOutput(op.Name, op.Handle, receipt, err)
		}(i)
	}
	wg.Wait()

	return outputs, nil
}

func countFailed(outputs []receiptOutput) int {
	failed := 0
	for _, output := range outputs {
		if output.Error != "" {
			failed++
		}
	}
	return failed
}
