package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tierkeeper/internal/classification"
	"github.com/Veraticus/tierkeeper/internal/cli"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
)

const importReason = "import"

func productsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Manage the product catalogue",
	}
	cmd.AddCommand(importProductsCmd())
	return cmd
}

func importProductsCmd() *cobra.Command {
	var (
		assign    bool
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import products from a marketplace JSON export",
		Long: `Import a JSON array of products. Existing products are updated in place.

Products listed under a configured display category also receive a tier
assignment for it, unless they already have one.`,
		Example: `  tierkeeper products import export.json
  tierkeeper products import export.json --overwrite`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			// #nosec G304 - the path is the user's own argument
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			products, err := decodeProducts(f)
			if err != nil {
				return err
			}

			display, err := classification.NewDisplayCategories(a.cfg.DisplayCategories)
			if err != nil {
				return err
			}

			res, err := importProducts(ctx, a.store, display, products, importOptions{assign: assign, overwrite: overwrite, now: time.Now()})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported %d products, %d tier assignments", res.products, res.assigned)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&assign, "assign", true, "Create tier assignments from display categories")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing tier assignments")
	return cmd
}

func decodeProducts(r io.Reader) ([]model.Product, error) {
	var products []model.Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	for i, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("product %d has no id", i)
		}
	}
	return products, nil
}

type importStore interface {
	service.ProductStore
	service.AssignmentStore
}

type importOptions struct {
	now       time.Time
	assign    bool
	overwrite bool
}

type importResult struct {
	products int
	assigned int
}

func importProducts(ctx context.Context, store importStore, display *classification.DisplayCategories, products []model.Product, opts importOptions) (importResult, error) {
	if len(products) == 0 {
		return importResult{}, nil
	}
	if err := store.SaveProducts(ctx, products); err != nil {
		return importResult{}, fmt.Errorf("failed to save products: %w", err)
	}
	res := importResult{products: len(products)}
	if !opts.assign {
		return res, nil
	}

	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	existing, err := store.GetAssignments(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("failed to load assignments: %w", err)
	}

	var assignments []model.TierAssignment
	for _, p := range products {
		tier, ok := display.TierFor(p.DisplayIDs)
		if !ok {
			continue
		}
		if cur, has := existing[p.ID]; has && (!opts.overwrite || cur.Tier == tier) {
			continue
		}
		assignments = append(assignments, model.TierAssignment{
			ProductID: p.ID,
			Tier:      tier,
			Reason:    importReason,
			UpdatedAt: opts.now.UTC(),
		})
	}
	if len(assignments) == 0 {
		return res, nil
	}
	if err := store.BulkUpsertAssignments(ctx, assignments); err != nil {
		return res, fmt.Errorf("failed to save assignments: %w", err)
	}
	res.assigned = len(assignments)
	return res, nil
}
