package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tierkeeper/internal/cli"
	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/engine"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
)

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Resolve archive products into sub-categories",
	}
	cmd.AddCommand(classifyArchiveCmd())
	cmd.AddCommand(rescanArchiveCmd())
	cmd.AddCommand(archiveCountsCmd())
	return cmd
}

func classifyArchiveCmd() *cobra.Command {
	var (
		ids         []string
		force       bool
		noSkip      bool
		concurrency int
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify products into archive sub-categories",
		Long: `Send products through the archive classifier. Without --ids every product in
the unresolved ARCHIVE bucket is classified. Products already holding a
sub-category are skipped unless --force or --no-skip is given.`,
		Example: `  tierkeeper archive classify
  tierkeeper archive classify --ids p-100,p-101 --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			products, err := loadArchiveCandidates(ctx, a, ids)
			if err != nil {
				return err
			}
			if len(products) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Nothing to classify"))
				return nil
			}

			q, err := a.archiveQueue(ctx)
			if err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			handler.SetResumeHint("tierkeeper archive classify")
			ctx, stop := handler.HandleInterrupts(ctx)
			defer stop()

			job, err := q.Start(ctx, engine.ClassifyRequest{
				Products:       products,
				SkipClassified: !noSkip,
				ForceRescan:    force,
				Concurrency:    concurrency,
			})
			if err != nil {
				return err
			}
			_, err = renderJob(cmd.OutOrStdout(), job, "Classifying archive", "Archive Classification", verbose)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Product ids to classify (default: the ARCHIVE bucket)")
	cmd.Flags().BoolVar(&force, "force", false, "Reclassify products that already have a sub-category")
	cmd.Flags().BoolVar(&noSkip, "no-skip", false, "Disable the already-classified skip filter")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override the configured worker count")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every result")
	return cmd
}

func loadArchiveCandidates(ctx context.Context, a *app, ids []string) ([]model.Product, error) {
	if len(ids) > 0 {
		return requestedProducts(ctx, a.store, ids)
	}
	bucket, err := a.store.QueryByTier(ctx, model.TierArchive)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive bucket: %w", err)
	}
	if len(bucket) == 0 {
		return nil, nil
	}
	for _, assignment := range bucket {
		ids = append(ids, assignment.ProductID)
	}
	products, err := a.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	return products, nil
}

// requestedProducts loads the products named by --ids.
func requestedProducts(ctx context.Context, store service.ProductStore, ids []string) ([]model.Product, error) {
	products, err := engine.RequestedProducts(ctx, store, ids)
	var unknown *engine.UnknownProductsError
	if errors.As(err, &unknown) {
		return nil, common.NewUserError(fmt.Sprintf("No product with id %s.", strings.Join(unknown.IDs, ", ")), err)
	}
	return products, err
}

func rescanArchiveCmd() *cobra.Command {
	var (
		offset      int
		limit       int
		all         bool
		force       bool
		staleBefore string
		concurrency int
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "rescan",
		Short: "Reclassify the archive backlog one window at a time",
		Long: `Walk every product in ARCHIVE or an archive sub-category, ordered by id,
in offset/limit windows. Each run reports the offset for the next window;
--all keeps going until the backlog is exhausted or the run budget runs out.`,
		Example: `  tierkeeper archive rescan --offset 0 --limit 50
  tierkeeper archive rescan --all --stale-before 2025-06-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req := engine.RescanRequest{
				Offset:      offset,
				Limit:       limit,
				Concurrency: concurrency,
				ForceRescan: force,
			}
			if staleBefore != "" {
				t, err := parseDate(staleBefore)
				if err != nil {
					return err
				}
				req.StaleBefore = &t
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := a.archiveQueue(ctx)
			if err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, stop := handler.HandleInterrupts(ctx)
			defer stop()

			flags := rescanFlags{
				limit:       limit,
				concurrency: concurrency,
				staleBefore: staleBefore,
				force:       force,
				all:         all,
			}
			out := cmd.OutOrStdout()

			var last engine.Summary
			if all {
				err = q.RescanAll(ctx, req, func(s engine.Summary) {
					cli.PrintRunSummary(out, "Archive Rescan Window", s)
					last = s
				})
			} else {
				var job *engine.Job
				job, err = q.StartRescan(ctx, req)
				if err != nil {
					return err
				}
				last, err = renderJob(out, job, "Rescanning archive", "Archive Rescan", verbose)
			}
			if last.NextOffset != nil && (err != nil || last.Interrupted || handler.WasInterrupted()) {
				fmt.Fprintln(out, cli.FormatInfo("Resume with: "+flags.resumeCommand(*last.NextOffset)))
			}
			return err
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Backlog offset to start at")
	cmd.Flags().IntVar(&limit, "limit", 0, "Window size (default and maximum: archive_queue.max_window)")
	cmd.Flags().BoolVar(&all, "all", false, "Keep rescanning window after window")
	cmd.Flags().BoolVar(&force, "force", false, "Reclassify products that already have a sub-category")
	cmd.Flags().StringVar(&staleBefore, "stale-before", "", "Only reclassify sub-categories last updated before this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override the configured worker count")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every result")
	return cmd
}

func archiveCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show the archive population per sub-category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.store.CountByTiers(ctx, model.ArchiveTiers())
			if err != nil {
				return fmt.Errorf("failed to count archive: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.ChartIcon+" Archive", cli.RenderTierTable(model.ArchiveTiers(), counts, nil)))
			return nil
		},
	}
}

// rescanFlags are the rescan options a resumed run must repeat.
type rescanFlags struct {
	staleBefore string
	limit       int
	concurrency int
	force       bool
	all         bool
}

// resumeCommand is the command line that continues a rescan at offset.
func (f rescanFlags) resumeCommand(offset int) string {
	args := []string{"tierkeeper archive rescan", fmt.Sprintf("--offset %d", offset)}
	if f.all {
		args = append(args, "--all")
	}
	if f.limit > 0 {
		args = append(args, fmt.Sprintf("--limit %d", f.limit))
	}
	if f.staleBefore != "" {
		args = append(args, "--stale-before "+f.staleBefore)
	}
	if f.force {
		args = append(args, "--force")
	}
	if f.concurrency > 0 {
		args = append(args, fmt.Sprintf("--concurrency %d", f.concurrency))
	}
	return strings.Join(args, " ")
}

// renderJob draws a job's progress and prints its summary, also for a run
// that ended early.
func renderJob(w io.Writer, job *engine.Job, label, title string, verbose bool) (engine.Summary, error) {
	cli.NewProgressRenderer(w, label, verbose).Render(job.Events())
	summary, err := job.Wait()
	if summary.RunID != "" {
		cli.PrintRunSummary(w, title, summary)
	}
	return summary, err
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}
