package cmd

import (
	"github.com/spf13/cobra"
)

func newEndpointsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "Build the endpoint pool and print the admitted endpoints",
		Long: `Probes every configured endpoint for its chain ID and height, and prints the
endpoints that passed admission, in rotation order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, _, err := opts.newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			return printJSON(cmd.OutOrStdout(), c.Pool.Endpoints())
		},
	}
}
