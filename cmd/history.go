package cmd

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/krylovex/gridpick-cli/internal/journal"
	"github.com/krylovex/gridpick-cli/internal/observability"
)

// newHistoryCmd creates the `history` command, which lists recent resolution
// runs from the attempt journal.
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Lists recent resolution attempts from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}

			if cfg.Journal.URL == "" {
				return fmt.Errorf("journal is not configured (set GRIDPICK_JOURNAL_URL)")
			}

			dbPool, err := pgxpool.New(ctx, cfg.Journal.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to journal database: %w", err)
			}
			defer dbPool.Close()

			recorder, err := journal.New(ctx, dbPool, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to initialize attempt journal: %w", err)
			}

			reports, err := recorder.Recent(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list recent attempts: %w", err)
			}
			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No journaled attempts yet.")
				return nil
			}

			for _, rep := range reports {
				line := fmt.Sprintf("%s  %-12s attempts=%d",
					rep.StartedAt.Format(time.RFC3339), rep.Outcome, rep.AttemptsUsed)
				if rep.TargetNumber != "" {
					line += fmt.Sprintf("  target=%s", rep.TargetNumber)
				}
				if rep.LastFailure != "" {
					line += fmt.Sprintf("  last_failure=%q", rep.LastFailure)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of attempts to list")

	return historyCmd
}
