package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krylovex/gridpick-cli/internal/network"
	"github.com/krylovex/gridpick-cli/internal/observability"
	"github.com/krylovex/gridpick-cli/internal/oracle"
)

// newBalanceCmd creates the `balance` command, a one-shot query of the
// solving account's remaining funds.
func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Prints the remaining balance of the solving oracle account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := oracle.NewClient(cfg.Oracle, network.NewAPIClient(cfg.Network.Timeout), observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to initialize oracle client: %w", err)
			}

			balance, err := client.Balance(ctx)
			if err != nil {
				return fmt.Errorf("balance query failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Oracle balance: $%.3f\n", balance)
			return nil
		},
	}
}
