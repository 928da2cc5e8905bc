package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/tierkeeper/internal/engine"
	"github.com/Veraticus/tierkeeper/internal/lifecycle"
	"github.com/Veraticus/tierkeeper/internal/model"
)

// PrintRunSummary prints a queue run's totals in a box.
func PrintRunSummary(w io.Writer, title string, s engine.Summary) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Results:\n", ChartIcon)
	fmt.Fprintf(&sb, "  • Total: %d\n", s.Counters.Total)
	fmt.Fprintf(&sb, "  • Succeeded: %d\n", s.Counters.Success)
	fmt.Fprintf(&sb, "  • Failed (fallback applied): %d\n", s.Counters.Failed)
	fmt.Fprintf(&sb, "  • Skipped: %d\n", s.Counters.Skipped)
	fmt.Fprintf(&sb, "  • Time taken: %s", s.Elapsed.Round(time.Millisecond))
	if s.TotalInDB > 0 {
		fmt.Fprintf(&sb, "\n  • Backlog size: %d", s.TotalInDB)
	}
	switch {
	case s.Interrupted && s.NextOffset != nil:
		fmt.Fprintf(&sb, "\n\n%s", FormatWarning(fmt.Sprintf("Run budget exhausted; resume at offset %d", *s.NextOffset)))
	case s.NextOffset != nil:
		fmt.Fprintf(&sb, "\n  • Next offset: %d", *s.NextOffset)
	}

	if _, err := fmt.Fprintln(w, RenderBox(title, sb.String())); err != nil {
		slog.Warn("Failed to write run summary", "error", err)
	}
}

// PrintPlan prints a rebalance plan: per-tier populations and the routes taken.
func PrintPlan(w io.Writer, plan *engine.Plan, dryRun bool) {
	title := "Rebalance Applied"
	if dryRun {
		title = "Rebalance Plan (dry run)"
	}

	extra := make(map[model.Tier]string)
	for _, t := range model.AllTiers() {
		before, after := plan.Before[t], plan.After[t]
		if before != after {
			extra[t] = fmt.Sprintf("was %d", before)
		}
	}

	var sb strings.Builder
	sb.WriteString(RenderTierTable(model.AllTiers(), plan.After, extra))
	fmt.Fprintf(&sb, "\n\n%s %d evaluated, %d protected, %d moved", BoxIcon, plan.Evaluated, plan.Protected, plan.Moved())

	routes := make([]string, 0, len(plan.Routes))
	for route := range plan.Routes {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	for _, route := range routes {
		fmt.Fprintf(&sb, "\n  • %s: %d", route, plan.Routes[route])
	}

	if _, err := fmt.Fprintln(w, RenderBox(title, sb.String())); err != nil {
		slog.Warn("Failed to write rebalance plan", "error", err)
	}
}

// PrintLifecycle prints one product's lifecycle position.
func PrintLifecycle(w io.Writer, p model.PlacedProduct, info lifecycle.Result) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\n", p.Product.Name)
	fmt.Fprintf(&sb, "Tier: %s\n", p.Tier)
	fmt.Fprintf(&sb, "Stage: %s\n", info.Stage)
	fmt.Fprintf(&sb, "Days since anchor: %d\n", info.DaysSince)
	fmt.Fprintf(&sb, "Discount: %d%%\n", info.DiscountRate)
	fmt.Fprintf(&sb, "Price: %s → %s", p.Product.Price.StringFixed(0), info.DiscountedPrice(p.Product.Price).StringFixed(0))

	if _, err := fmt.Fprintln(w, RenderBox(p.Product.ID, sb.String())); err != nil {
		slog.Warn("Failed to write lifecycle", "error", err)
	}
}

// PrintMoves prints a product's move history, oldest first.
func PrintMoves(w io.Writer, productID string, moves []model.TierMove) {
	if len(moves) == 0 {
		if _, err := fmt.Fprintln(w, FormatInfo("No moves recorded for "+productID)); err != nil {
			slog.Warn("Failed to write moves", "error", err)
		}
		return
	}

	var sb strings.Builder
	sb.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-19s  %-18s  %-18s  %s", "WHEN", "FROM", "TO", "REASON")))
	for _, m := range moves {
		fmt.Fprintf(&sb, "\n%-19s  %-18s  %-18s  %s", m.MovedAt.Local().Format("2006-01-02 15:04:05"), m.From, m.To, m.Reason)
	}
	if _, err := fmt.Fprintln(w, RenderBox("Moves for "+productID, sb.String())); err != nil {
		slog.Warn("Failed to write moves", "error", err)
	}
}
