package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tierkeeper/internal/cli"
)

func movesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "moves <product-id>",
		Short: "Show every recorded tier move of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			moves, err := a.store.GetMoveHistory(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load move history: %w", err)
			}
			cli.PrintMoves(cmd.OutOrStdout(), args[0], moves)
			return nil
		},
	}
}
