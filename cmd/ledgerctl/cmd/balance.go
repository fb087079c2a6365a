package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type balanceOutput struct {
	Address common.Address `json:"address"`
	// Wei is the balance in wei, as a decimal string.
	Wei string `json:"wei"`
}

func newBalanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>...",
		Short: "Print the native balance of one or more addresses",
		Long: `Reads the balances in a single aggregate call through the batching facility,
or with one call per address if the facility is not deployed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owners := make([]common.Address, len(args))
			for i, arg := range args {
				if !common.IsHexAddress(arg) {
					return fmt.Errorf("invalid address %q", arg)
				}
				owners[i] = common.HexToAddress(arg)
			}

			c, _, _, err := opts.newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			balances, err := c.Balances(cmd.Context(), owners...)
			if err != nil {
				return err
			}

			output := make([]balanceOutput, len(owners))
			for i, owner := range owners {
				output[i] = balanceOutput{Address: owner, Wei: balances[i].String()}
			}
			return printJSON(cmd.OutOrStdout(), output)
		},
	}
}
