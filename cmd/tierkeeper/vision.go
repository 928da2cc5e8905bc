package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tierkeeper/internal/cli"
	"github.com/Veraticus/tierkeeper/internal/engine"
	"github.com/Veraticus/tierkeeper/internal/model"
)

func visionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vision",
		Short: "Describe products from their photos",
	}
	cmd.AddCommand(analyzeVisionCmd())
	cmd.AddCommand(visionStatsCmd())
	return cmd
}

func analyzeVisionCmd() *cobra.Command {
	var (
		ids         []string
		limit       int
		force       bool
		concurrency int
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run vision analysis over the catalogue",
		Long: `Analyze product photos for brand, clothing type, colors, fabric and grade.
Products with a completed analysis are skipped unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if limit < 0 {
				return fmt.Errorf("limit must not be negative")
			}
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var products []model.Product
			if len(ids) > 0 {
				products, err = requestedProducts(ctx, a.store, ids)
			} else {
				products, err = a.store.GetProducts(ctx)
				if err != nil {
					err = fmt.Errorf("failed to load products: %w", err)
				}
			}
			if err != nil {
				return err
			}
			if limit > 0 && len(products) > limit {
				products = products[:limit]
			}
			if len(products) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Nothing to analyze"))
				return nil
			}

			q, err := a.visionQueue(ctx)
			if err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			handler.SetResumeHint("tierkeeper vision analyze")
			ctx, stop := handler.HandleInterrupts(ctx)
			defer stop()

			job, err := q.Start(ctx, engine.VisionRequest{
				Products:    products,
				Force:       force,
				Concurrency: concurrency,
			})
			if err != nil {
				return err
			}
			_, err = renderJob(cmd.OutOrStdout(), job, "Analyzing photos", "Vision Analysis", verbose)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Product ids to analyze (default: the whole catalogue)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Analyze at most this many products (0 for all)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-analyze products with a completed analysis")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override the configured worker count")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every result")
	return cmd
}

func visionStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize stored vision analyses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.store.GetVisionStats(ctx)
			if err != nil {
				return fmt.Errorf("failed to load vision stats: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.RobotIcon+" Vision Analysis", formatVisionStats(stats)))
			return nil
		},
	}
}

func formatVisionStats(s *model.VisionStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total: %d (completed %d, failed %d, pending %d)\n", s.Total, s.Completed, s.Failed, s.Pending)
	fmt.Fprintf(&sb, "Average confidence: %.1f", s.AvgConfidence)
	writeBreakdown(&sb, "By grade", s.ByGrade)
	writeBreakdown(&sb, "By clothing type", s.ByClothingType)
	return sb.String()
}

func writeBreakdown(sb *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(sb, "\n\n%s:", title)
	for _, k := range keys {
		fmt.Fprintf(sb, "\n  • %s: %d", k, counts[k])
	}
}
