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

func newJobsCmd() *cobra.Command {
	var maxPages int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Harvest company data from the public job board",
		Long: `Searches the public job board for the configured occupation, walks
the result pages and scrapes every listing's detail page. Listings carrying
a corporate number are reconciled into the company table; the listing itself
is stored alongside.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJobs(cmd, maxPages)
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many result pages (0 = all)")
	return cmd
}

func runJobs(cmd *cobra.Command, maxPages int) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := requireStore(a); err != nil {
		return err
	}
	ctx, span := telemetry.StartSpan(cmd.Context(), "jobs")
	defer span.End()

	board := adapter.NewJobBoardAdapter(adapter.JobBoardConfig{
		SearchURL:      a.Cfg.Sources.JobBoard.SearchURL,
		DetailURL:      a.Cfg.Sources.JobBoard.DetailURL,
		OccupationCode: a.Cfg.Sources.JobBoard.OccupationCode,
		PageSize:       a.Cfg.Sources.JobBoard.PageSize,
		Charset:        adapter.Charset(a.Cfg.Sources.JobBoard.Charset),
	}, a.Client, a.Logger)

	runner := pipeline.NewRunner(
		board,
		pipeline.NewMatcher(a.Store),
		coordinator.New(a.Store, a.Logger),
		a.Limiter,
		pipeline.NewRetryPolicy(a.Cfg.Fetch.MaxRetries),
		system.New(),
		a.Logger,
	)

	runID := a.Tracker.Begin("jobs", board.Source())
	total, err := jobPages(ctx, a.Logger, board, runner, maxPages, time.Duration(a.Cfg.Sources.JobBoard.PagePauseMs)*time.Millisecond)
	a.Tracker.Finish(runID, total, err)
	logSummary(a.Logger, "jobs finished", total)
	if err != nil {
		return err
	}
	if total.Failed > 0 {
		return fmt.Errorf("jobs completed with %d failed listings", total.Failed)
	}
	return nil
}

// jobSearcher is the slice of the job-board adapter the page loop needs.
type jobSearcher interface {
	InitSession(ctx context.Context) (*adapter.Session, error)
	SearchPage(ctx context.Context, sess *adapter.Session, page int) ([]string, bool, error)
}

// jobPages drives one search session page by page, feeding each page's job
// numbers through the runner. Page zero submits the search; later pages
// navigate within the session.
func jobPages(
	ctx context.Context,
	logger *zap.Logger,
	board jobSearcher,
	runner *pipeline.Runner,
	maxPages int,
	pause time.Duration,
) (pipeline.Summary, error) {
	var total pipeline.Summary

	sess, err := board.InitSession(ctx)
	if err != nil {
		return total, fmt.Errorf("init session: %w", err)
	}

	seen := make(map[string]struct{})
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("jobs interrupted: %w", err)
		}
		if maxPages > 0 && page >= maxPages {
			return total, nil
		}

		numbers, hasNext, err := board.SearchPage(ctx, sess, page)
		if err != nil {
			return total, fmt.Errorf("search page %d: %w", page, err)
		}

		work := make([]pipeline.WorkItem, 0, len(numbers))
		for _, n := range numbers {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			work = append(work, pipeline.WorkItem{Key: n})
		}
		logger.Info("result page scraped",
			zap.Int("page", page),
			zap.Int("listings", len(work)),
			zap.Bool("has_next", hasNext),
		)

		if len(work) > 0 {
			batch := runner.Run(ctx, work)
			mergeSummary(&total, batch)
			if batch.Processed() < len(work) {
				return total, nil
			}
		}

		if !hasNext {
			return total, nil
		}
		select {
		case <-ctx.Done():
			return total, fmt.Errorf("jobs interrupted: %w", ctx.Err())
		case <-time.After(pause):
		}
	}
}
