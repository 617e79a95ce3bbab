package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaishamap/company-pipeline/internal/migrations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if a.Cfg.DB.DSN == "" {
				return fmt.Errorf("db.dsn is required for this command")
			}
			if err := migrations.Up(cmd.Context(), a.Cfg.DB.DSN); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			a.Logger.Info("migrations applied")
			return nil
		},
	}
}
