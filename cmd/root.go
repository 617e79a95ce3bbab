// Package cmd defines the CLI commands for the pipeline executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/app"
	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

var cfgFile string

type appKeyType struct{}

var appKey appKeyType

// newApp is a variable so tests can substitute a prepared container.
var newApp = func(ctx context.Context) (*app.App, error) {
	return app.New(ctx, cfgFile)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Company registry scraper and reconciliation pipeline",
		Long: `pipeline scrapes Japanese company data from the pension coverage
registry, the national corporate-number registry, a public job board and
company-profile sites, and reconciles every record into one company table
keyed by corporate number.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			a.StartOpsServer()
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is environment only)")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newProfilesCmd())
	cmd.AddCommand(newLinkCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return a, nil
}

func requireStore(a *app.App) error {
	if a.Store == nil {
		return fmt.Errorf("db.dsn is required for this command")
	}
	return nil
}

// mergeSummary folds one batch summary into the running total.
func mergeSummary(total *pipeline.Summary, batch pipeline.Summary) {
	if total.RunID == "" {
		total.RunID = batch.RunID
		total.Source = batch.Source
		total.Started = batch.Started
	}
	total.Finished = batch.Finished
	total.Created += batch.Created
	total.Updated += batch.Updated
	total.Skipped += batch.Skipped
	total.NotFound += batch.NotFound
	total.Failed += batch.Failed
	total.Issues = append(total.Issues, batch.Issues...)
}

func logSummary(logger *zap.Logger, msg string, sum pipeline.Summary) {
	logger.Info(msg,
		zap.String("source", sum.Source),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("skipped", sum.Skipped),
		zap.Int("not_found", sum.NotFound),
		zap.Int("failed", sum.Failed),
		zap.Int("issues", len(sum.Issues)),
	)
}

// ExecuteContext runs the root command under ctx, which carries signal
// cancellation from main.
func ExecuteContext(ctx context.Context) {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
