package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/adapter"
	"github.com/kaishamap/company-pipeline/internal/pipeline"
	"github.com/kaishamap/company-pipeline/internal/telemetry"
)

func newProfilesCmd() *cobra.Command {
	var (
		source string
		from   int64
		to     int64
	)

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Scrape a company-profile site by id range",
		Long: `Fetches profile pages for every id in [from, to] from the configured
profile site and stores each company row for later corporate-number
linking. Missing ids are skipped; rescraping an id refreshes its row.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProfiles(cmd, source, from, to)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "profile source to scrape (required)")
	cmd.Flags().Int64Var(&from, "from", 1, "first profile id")
	cmd.Flags().Int64Var(&to, "to", 0, "last profile id (required)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runProfiles(cmd *cobra.Command, source string, from, to int64) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := requireStore(a); err != nil {
		return err
	}
	siteCfg, ok := a.Cfg.Sources.Profiles[source]
	if !ok {
		return fmt.Errorf("unknown profile source %q", source)
	}
	if to < from {
		return fmt.Errorf("--to must be >= --from")
	}

	prof := adapter.NewProfileAdapter(adapter.ProfileConfig{
		Source:        source,
		URLPattern:    siteCfg.URLPattern,
		ItemSelector:  siteCfg.ItemSelector,
		LabelSelector: siteCfg.LabelSelector,
		ValueSelector: siteCfg.ValueSelector,
		NameLabel:     siteCfg.NameLabel,
		AddressLabel:  siteCfg.AddressLabel,
		UserAgent:     a.Cfg.Fetch.UserAgent,
		Timeout:       a.Cfg.FetchTimeout(),
	}, a.Logger)

	deps := profileDeps{
		fetcher: prof,
		store:   a.Store,
		pacer:   a.Limiter,
		retry:   pipeline.NewRetryPolicy(a.Cfg.Fetch.MaxRetries),
		logger:  a.Logger,
	}

	ctx, span := telemetry.StartSpan(cmd.Context(), "profiles")
	defer span.End()

	runID := a.Tracker.Begin("profiles", source)
	sum, err := scrapeProfiles(ctx, deps, source, from, to)
	a.Tracker.Finish(runID, sum, err)
	logSummary(a.Logger, "profiles finished", sum)
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("profiles completed with %d failed ids", sum.Failed)
	}
	return nil
}

// profileFetcher is the face of the profile adapter the scrape loop needs.
type profileFetcher interface {
	Source() string
	FetchProfile(ctx context.Context, id int64) (pipeline.ProfileCompany, error)
}

type profileDeps struct {
	fetcher profileFetcher
	store   pipeline.ProfileStore
	pacer   pipeline.Pacer
	retry   *pipeline.RetryPolicy
	logger  *zap.Logger
}

// scrapeProfiles walks the id range in order, storing every page that
// resolves to a company row. Gaps in the site's id space are expected and
// counted, not failed.
func scrapeProfiles(ctx context.Context, deps profileDeps, source string, from, to int64) (pipeline.Summary, error) {
	sum := pipeline.Summary{Source: source, Started: time.Now().UTC()}
	defer func() { sum.Finished = time.Now().UTC() }()

	for id := from; id <= to; id++ {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("profiles interrupted: %w", err)
		}

		pc, err := fetchProfileWithRetry(ctx, deps, id)
		switch {
		case errors.Is(err, pipeline.ErrNotFound):
			sum.NotFound++
			continue
		case err != nil:
			sum.Failed++
			sum.Issues = append(sum.Issues, pipeline.Issue{
				Key:    strconv.FormatInt(id, 10),
				Kind:   "fetch",
				Detail: err.Error(),
			})
			deps.logger.Warn("profile fetch failed",
				zap.String("source", source),
				zap.Int64("id", id),
				zap.Error(err),
			)
			continue
		}

		if _, err := deps.store.UpsertProfileCompany(ctx, pc); err != nil {
			sum.Failed++
			sum.Issues = append(sum.Issues, pipeline.Issue{
				Key:    strconv.FormatInt(id, 10),
				Kind:   "storage",
				Detail: err.Error(),
			})
			continue
		}
		sum.Created++
	}
	return sum, nil
}

func fetchProfileWithRetry(ctx context.Context, deps profileDeps, id int64) (pipeline.ProfileCompany, error) {
	source := deps.fetcher.Source()
	for attempt := 0; ; attempt++ {
		if deps.pacer != nil {
			if err := deps.pacer.Wait(ctx, source); err != nil {
				return pipeline.ProfileCompany{}, err
			}
		}
		pc, err := deps.fetcher.FetchProfile(ctx, id)
		if err == nil {
			return pc, nil
		}
		if !deps.retry.ShouldRetry(err, attempt) {
			return pipeline.ProfileCompany{}, err
		}
		select {
		case <-ctx.Done():
			return pipeline.ProfileCompany{}, ctx.Err()
		case <-time.After(deps.retry.Backoff(attempt)):
		}
	}
}
