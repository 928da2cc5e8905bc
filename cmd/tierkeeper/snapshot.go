package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tierkeeper/internal/cli"
)

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage database snapshots",
		Long: `Create, list and delete database snapshots.

A snapshot is taken automatically before every applied rebalance; take one
by hand before anything else you might want to undo.`,
		Example: `  # Snapshot before a bulk import
  tierkeeper snapshot create --tag pre-import

  # List all snapshots
  tierkeeper snapshot list

  # Delete an old snapshot
  tierkeeper snapshot delete pre-import`,
	}

	cmd.AddCommand(createSnapshotCmd())
	cmd.AddCommand(listSnapshotsCmd())
	cmd.AddCommand(deleteSnapshotCmd())
	return cmd
}

func createSnapshotCmd() *cobra.Command {
	var tag, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			manager, err := a.snapshots()
			if err != nil {
				return err
			}
			info, err := manager.Create(ctx, tag, description, false)
			if err != nil {
				return fmt.Errorf("failed to create snapshot: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Created snapshot %s (%s, %d assignments)\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(info.ID),
				formatFileSize(info.FileSize),
				info.Assignments())
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Snapshot tag (auto-generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the snapshot")
	return cmd
}

func listSnapshotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			manager, err := a.snapshots()
			if err != nil {
				return err
			}
			snapshots, err := manager.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}
			if len(snapshots) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("No snapshots found."))
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle("Snapshots"))
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
			fmt.Fprintln(w, strings.Join([]string{
				headerStyle.Render("NAME"),
				headerStyle.Render("CREATED"),
				headerStyle.Render("SIZE"),
				headerStyle.Render("PRODUCTS"),
				headerStyle.Render("ASSIGNMENTS"),
				headerStyle.Render("TYPE"),
			}, "\t"))

			for _, s := range snapshots {
				typeLabel := "manual"
				if s.IsAuto {
					typeLabel = "auto"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					cli.InfoStyle.Render(s.ID),
					formatRelativeTime(s.CreatedAt, time.Now()),
					formatFileSize(s.FileSize),
					s.RowCounts["products"],
					s.Assignments(),
					cli.SubtleStyle.Render(typeLabel),
				)
			}
			return w.Flush()
		},
	}
}

func deleteSnapshotCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			manager, err := a.snapshots()
			if err != nil {
				return err
			}

			if !force {
				fmt.Fprintf(cmd.OutOrStdout(), "%s This will permanently delete snapshot %s.\n",
					cli.WarningStyle.Render(cli.WarningIcon),
					cli.InfoStyle.Render(id))
				ok, err := cli.NewConfirmer(os.Stdin, cmd.OutOrStdout()).Confirm(ctx, "Continue?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("Deletion cancelled."))
					return nil
				}
			}

			if err := manager.Delete(ctx, id); err != nil {
				return fmt.Errorf("failed to delete snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted snapshot %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(id))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
