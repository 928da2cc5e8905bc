package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tierkeeper/internal/cli"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on open as well; this command only does that
and reports where the database lives.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			target := a.cfg.Database.Path
			if a.cfg.Database.Driver == "postgres" {
				target = "postgres"
			}
			slog.Info("Database migrated", "driver", a.cfg.Database.Driver, "database", target)
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database migrations completed successfully!"))
			return nil
		},
	}
}
