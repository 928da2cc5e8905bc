package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tierkeeper/internal/cli"
	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/engine"
	"github.com/Veraticus/tierkeeper/internal/lifecycle"
)

func lifecycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lifecycle <product-id>",
		Short: "Show a product's lifecycle stage, age and discount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			product, err := a.store.GetProduct(ctx, args[0])
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError(fmt.Sprintf("No product with id %s.", args[0]), err)
				}
				return err
			}
			assignment, err := a.store.GetAssignment(ctx, product.ID)
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("failed to load assignment: %w", err)
			}

			now := time.Now()
			placed := engine.ResolveTier(*product, assignment, a.cfg.Lifecycle, now)
			info := lifecycle.ForProduct(*product, assignment, a.cfg.Lifecycle, now)
			cli.PrintLifecycle(cmd.OutOrStdout(), placed, info)
			return nil
		},
	}
}
