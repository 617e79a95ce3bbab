package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/adapter"
	"github.com/kaishamap/company-pipeline/internal/clock/system"
	"github.com/kaishamap/company-pipeline/internal/coordinator"
	"github.com/kaishamap/company-pipeline/internal/pipeline"
	"github.com/kaishamap/company-pipeline/internal/telemetry"
)

func newSyncCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh insured-count observations from the coverage registry",
		Long: `Walks every company that has no insured-count observation for the
current month, looks each one up in the pension coverage registry by
corporate number and upserts the company record plus its monthly
observation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many companies (0 = all)")
	return cmd
}

func runSync(cmd *cobra.Command, limit int) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := requireStore(a); err != nil {
		return err
	}
	ctx, span := telemetry.StartSpan(cmd.Context(), "sync")
	defer span.End()

	clk := system.New()
	fetcher := adapter.NewPensionAdapter(adapter.PensionConfig{
		SearchURL: a.Cfg.Sources.Pension.SearchURL,
		Charset:   adapter.Charset(a.Cfg.Sources.Pension.Charset),
	}, a.Client, clk, a.Logger)

	runner := pipeline.NewRunner(
		fetcher,
		pipeline.NewMatcher(a.Store),
		coordinator.New(a.Store, a.Logger),
		a.Limiter,
		pipeline.NewRetryPolicy(a.Cfg.Fetch.MaxRetries),
		clk,
		a.Logger,
	)

	now := time.Now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	deps := syncDeps{
		lister:    a.Store,
		batchSize: a.Cfg.Batch.Size,
		pause:     a.Cfg.BatchPause(),
		logger:    a.Logger,
	}

	runID := a.Tracker.Begin("sync", fetcher.Source())
	total, err := syncBatches(ctx, deps, runner, since, limit)
	a.Tracker.Finish(runID, total, err)
	logSummary(a.Logger, "sync finished", total)
	if err != nil {
		return err
	}
	if total.Failed > 0 {
		return fmt.Errorf("sync completed with %d failed records", total.Failed)
	}
	return nil
}

type syncDeps struct {
	lister    pipeline.WorkLister
	batchSize int
	pause     time.Duration
	logger    *zap.Logger
}

// syncBatches drains the work list in batches until it is empty, the limit
// is reached or the context ends.
func syncBatches(ctx context.Context, deps syncDeps, runner *pipeline.Runner, since time.Time, limit int) (pipeline.Summary, error) {
	var total pipeline.Summary
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("sync interrupted: %w", err)
		}
		batchSize := deps.batchSize
		if limit > 0 && limit-total.Processed() < batchSize {
			batchSize = limit - total.Processed()
		}
		if batchSize <= 0 {
			return total, nil
		}

		companies, err := deps.lister.CompaniesMissingObservation(ctx, since, offset, batchSize)
		if err != nil {
			return total, fmt.Errorf("list work: %w", err)
		}
		if len(companies) == 0 {
			return total, nil
		}

		work := make([]pipeline.WorkItem, 0, len(companies))
		for _, c := range companies {
			work = append(work, pipeline.WorkItem{Key: c.CorporateNumber})
		}

		batch := runner.Run(ctx, work)
		mergeSummary(&total, batch)

		// Companies that gained an observation drop out of the work list, so
		// only the leftovers consume offset. A processed count short of the
		// batch means cancellation mid-batch.
		if batch.Processed() < len(work) {
			return total, nil
		}
		offset += len(work) - batch.Created - batch.Updated

		deps.logger.Info("batch finished",
			zap.Int("batch", len(work)),
			zap.Int("total_processed", total.Processed()),
		)
		select {
		case <-ctx.Done():
			return total, fmt.Errorf("sync interrupted: %w", ctx.Err())
		case <-time.After(deps.pause):
		}
	}
}
