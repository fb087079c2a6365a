package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildwithgrove/ledgerclient/client"
	"github.com/buildwithgrove/ledgerclient/paginator"
)

type recordOutput struct {
	ID     uint64        `json:"id"`
	Record client.Record `json:"record"`
}

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	var (
		window      string
		page        uint64
		pageSize    uint64
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Print a page of records from the configured record contract, most recent first",
		Example: `  ledgerctl records --page 0 --page-size 20
  ledgerctl records --window 100..120`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if window != "" && cmd.Flags().Changed("page") {
				return fmt.Errorf("--window and --page are mutually exclusive")
			}

			var recordWindow *paginator.Window
			if window != "" {
				parsed, err := paginator.ParseWindow(window)
				if err != nil {
					return err
				}
				recordWindow = &parsed
			}

			c, _, _, err := opts.newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			records, err := c.Records()
			if err != nil {
				return err
			}

			var entries []paginator.Entry[client.Record]
			if recordWindow != nil {
				entries, err = records.FetchWindow(cmd.Context(), *recordWindow, concurrency)
			} else {
				entries, err = records.FetchPage(cmd.Context(), page, pageSize, concurrency)
			}
			if err != nil {
				return err
			}

			output := make([]recordOutput, len(entries))
			for i, entry := range entries {
				output[i] = recordOutput{ID: entry.ID, Record: entry.Record}
			}
			return printJSON(cmd.OutOrStdout(), output)
		},
	}

	cmd.Flags().StringVar(&window, "window", "", "inclusive range of record ids, written X..Y")
	cmd.Flags().Uint64Var(&page, "page", 0, "page number, page 0 holding the most recent records")
	cmd.Flags().Uint64Var(&pageSize, "page-size", 0, "records per page (default: the configured page size)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "records fetched at a time (default: the configured concurrency)")

	return cmd
}
