package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tierkeeper/internal/cli"
	"github.com/Veraticus/tierkeeper/internal/engine"
)

func rebalanceCmd() *cobra.Command {
	var (
		dryRun     bool
		noSnapshot bool
	)

	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Evict the lowest-scoring products from over-capacity tiers",
		Long: `Score every product and move the excess of each over-capacity tier one
tier down, cascading until every bound tier fits its capacity.

With the sqlite driver an automatic snapshot is taken before moves are applied.`,
		Example: `  # Preview the moves
  tierkeeper rebalance --dry-run

  # Apply them
  tierkeeper rebalance`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.rebalancer(!noSnapshot)
			if err != nil {
				return err
			}
			plan, err := r.Run(ctx, dryRun)
			if err != nil {
				return fmt.Errorf("rebalance failed: %w", err)
			}
			cli.PrintPlan(cmd.OutOrStdout(), plan, dryRun)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the plan without applying it")
	cmd.Flags().BoolVar(&noSnapshot, "no-snapshot", false, "Skip the automatic pre-apply snapshot")
	return cmd
}

func cycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Rebalance, then classify everything left in the ARCHIVE bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.rebalancer(true)
			if err != nil {
				return err
			}
			q, err := a.archiveQueue(ctx)
			if err != nil {
				return err
			}

			result, err := engine.NewPipeline(a.store, r, q, a.logger).RunCycle(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			cli.PrintPlan(out, result.Plan, false)
			if result.Classification != nil {
				cli.PrintRunSummary(out, "Archive Classification", *result.Classification)
			} else {
				fmt.Fprintln(out, cli.FormatInfo("No unresolved archive products"))
			}
			return nil
		},
	}
}
