package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaishamap/company-pipeline/internal/adapter"
	"github.com/kaishamap/company-pipeline/internal/clock/system"
	"github.com/kaishamap/company-pipeline/internal/pipeline"
	"github.com/kaishamap/company-pipeline/internal/telemetry"
)

func newLinkCmd() *cobra.Command {
	var (
		source string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Resolve corporate numbers for unlinked profile rows",
		Long: `Takes profile-site rows that are not yet tied to a company, looks
each one up in the national corporate-number registry by name and address,
and links resolved rows to their company, creating the company when it does
not exist yet. Ambiguous registry results stay unlinked rather than risk a
wrong number.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLink(cmd, source, limit)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "profile source to link (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many rows (0 = all)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func runLink(cmd *cobra.Command, source string, limit int) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := requireStore(a); err != nil {
		return err
	}
	if _, ok := a.Cfg.Sources.Profiles[source]; !ok {
		return fmt.Errorf("unknown profile source %q", source)
	}

	lookup := adapter.NewHoujinAdapter(adapter.HoujinConfig{
		SearchURL: a.Cfg.Sources.Houjin.SearchURL,
		Charset:   adapter.Charset(a.Cfg.Sources.Houjin.Charset),
	}, a.Client, a.Logger)

	linker := pipeline.NewLinker(
		a.Store,
		a.Store,
		lookup,
		a.Limiter,
		pipeline.NewRetryPolicy(a.Cfg.Fetch.MaxRetries),
		system.New(),
		a.Logger,
	)

	ctx, span := telemetry.StartSpan(cmd.Context(), "link")
	defer span.End()

	runID := a.Tracker.Begin("link", source)
	sum := linker.Run(ctx, source, limit)
	a.Tracker.Finish(runID, sum, nil)
	logSummary(a.Logger, "link finished", sum)

	if sum.Failed > 0 {
		return fmt.Errorf("link completed with %d failed rows", sum.Failed)
	}
	return nil
}
