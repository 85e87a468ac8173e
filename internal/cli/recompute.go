package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ledger/internal/log"
)

func newRecomputeCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute [budget-id...]",
		Short: "Rebuild cached aggregates from transactions",
		Long:  "Rebuild month, category and account aggregates of the named budgets, or of every budget when none is named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			be, err := openBackend(ctx, env, false)
			if err != nil {
				return err
			}
			defer func() {
				if err := be.Cleanup(); err != nil {
					env.logger.Error("Backend cleanup failed", log.FieldError, err)
				}
			}()

			ids := args
			if len(ids) == 0 {
				budgets, err := be.Service.ListBudgets(ctx)
				if err != nil {
					return err
				}
				for _, b := range budgets {
					ids = append(ids, b.ID)
				}
			}

			for _, id := range ids {
				stats, err := be.Service.RecomputeBudget(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d months, %d categories, %d accounts\n",
					id, stats.Months, stats.Categories, stats.Accounts)
			}
			return nil
		},
	}
}
