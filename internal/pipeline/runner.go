package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/metrics"
)

// WorkItem identifies one unit of driver work: a corporate number, a
// sequential profile id, or whatever key the source adapter understands.
type WorkItem struct {
	Key string
}

// CandidateFetcher is the keyed-lookup face of a source adapter. An adapter
// never retries internally; retry policy belongs to the driver.
type CandidateFetcher interface {
	Source() string
	FetchCandidate(ctx context.Context, key string) (Candidate, error)
}

// Applier commits a matched record. Implemented by the upsert coordinator.
type Applier interface {
	Apply(ctx context.Context, decision MatchDecision, cand Candidate) (Outcome, error)
}

// Pacer enforces the minimum delay between outbound fetches for a source.
type Pacer interface {
	Wait(ctx context.Context, source string) error
}

// Issue is one skip or failure, with enough context to drive a manual
// follow-up queue.
type Issue struct {
	Key    string
	Kind   string
	Detail string
}

// Summary is the operator-visible result of one driver run.
type Summary struct {
	RunID    string
	Source   string
	Started  time.Time
	Finished time.Time
	Created  int
	Updated  int
	Skipped  int
	NotFound int
	Failed   int
	Issues   []Issue
}

// Processed returns the number of work items that reached a terminal state.
func (s Summary) Processed() int {
	return s.Created + s.Updated + s.Skipped + s.NotFound + s.Failed
}

// Runner walks a work list strictly in order, feeding each record through
// fetch, match and apply. Single-threaded by design: the sources tolerate no
// concurrent scraping, so the hard concurrency concern is pacing, not
// fan-out. No per-record error aborts the batch; only cancellation does, and
// only between records.
type Runner struct {
	fetcher CandidateFetcher
	matcher *Matcher
	applier Applier
	pacer   Pacer
	retry   *RetryPolicy
	clock   Clock
	logger  *zap.Logger
}

// NewRunner wires a driver loop.
func NewRunner(
	fetcher CandidateFetcher,
	matcher *Matcher,
	applier Applier,
	pacer Pacer,
	retry *RetryPolicy,
	clock Clock,
	logger *zap.Logger,
) *Runner {
	if clock == nil {
		clock = SystemClock{}
	}
	if retry == nil {
		retry = NewRetryPolicy(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		fetcher: fetcher,
		matcher: matcher,
		applier: applier,
		pacer:   pacer,
		retry:   retry,
		clock:   clock,
		logger:  logger,
	}
}

// Run processes the work list and returns the run summary. On cancellation
// it stops after the in-flight record, so an operator inspecting partial
// progress sees a completed prefix of the work list, never a scattered
// subset.
func (r *Runner) Run(ctx context.Context, work []WorkItem) Summary {
	sum := Summary{
		RunID:   uuid.NewString(),
		Source:  r.fetcher.Source(),
		Started: r.clock.Now(),
	}
	r.logger.Info("run started",
		zap.String("run_id", sum.RunID),
		zap.String("source", sum.Source),
		zap.Int("work_items", len(work)),
	)

	for _, item := range work {
		if ctx.Err() != nil {
			r.logger.Warn("run canceled",
				zap.String("run_id", sum.RunID),
				zap.Int("processed", sum.Processed()),
			)
			break
		}
		r.process(ctx, item, &sum)
	}

	sum.Finished = r.clock.Now()
	r.logger.Info("run finished",
		zap.String("run_id", sum.RunID),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("skipped", sum.Skipped),
		zap.Int("not_found", sum.NotFound),
		zap.Int("failed", sum.Failed),
	)
	return sum
}

func (r *Runner) process(ctx context.Context, item WorkItem, sum *Summary) {
	source := r.fetcher.Source()

	cand, err := r.fetchWithRetry(ctx, item.Key)
	switch {
	case errors.Is(err, ErrNotFound):
		sum.NotFound++
		metrics.RecordResult(source, "not_found")
		r.logger.Debug("not found at source", zap.String("key", item.Key))
		return
	case errors.Is(err, ErrAmbiguousMatch):
		sum.Skipped++
		sum.Issues = append(sum.Issues, Issue{Key: item.Key, Kind: "ambiguous", Detail: err.Error()})
		metrics.RecordResult(source, "skipped")
		r.logger.Warn("ambiguous match skipped", zap.String("key", item.Key))
		return
	case err != nil:
		sum.Failed++
		sum.Issues = append(sum.Issues, Issue{Key: item.Key, Kind: issueKind(err), Detail: err.Error()})
		metrics.RecordResult(source, "failed")
		r.logger.Error("record failed", zap.String("key", item.Key), zap.Error(err))
		return
	}

	decision, err := r.matcher.Reconcile(ctx, cand.Company)
	if err != nil {
		sum.Failed++
		sum.Issues = append(sum.Issues, Issue{Key: item.Key, Kind: "storage", Detail: err.Error()})
		metrics.RecordResult(source, "failed")
		r.logger.Error("reconcile failed", zap.String("key", item.Key), zap.Error(err))
		return
	}

	outcome, err := r.applier.Apply(ctx, decision, cand)
	if err != nil {
		sum.Failed++
		sum.Issues = append(sum.Issues, Issue{Key: item.Key, Kind: "storage", Detail: err.Error()})
		metrics.RecordResult(source, "failed")
		r.logger.Error("apply failed", zap.String("key", item.Key), zap.Error(err))
		return
	}

	switch outcome {
	case OutcomeCreated:
		sum.Created++
	case OutcomeUpdated:
		sum.Updated++
	case OutcomeSkipped:
		sum.Skipped++
		sum.Issues = append(sum.Issues, Issue{Key: item.Key, Kind: "skip", Detail: decision.Reason})
	}
	metrics.RecordResult(source, string(outcome))
}

func (r *Runner) fetchWithRetry(ctx context.Context, key string) (Candidate, error) {
	source := r.fetcher.Source()
	var lastErr error
	for attempt := 0; ; attempt++ {
		if r.pacer != nil {
			if err := r.pacer.Wait(ctx, source); err != nil {
				return Candidate{}, err
			}
		}

		start := r.clock.Now()
		cand, err := r.fetcher.FetchCandidate(ctx, key)
		metrics.ObserveFetch(source, err == nil, r.clock.Now().Sub(start))
		if err == nil {
			return cand, nil
		}
		lastErr = err

		if !r.retry.ShouldRetry(err, attempt) {
			return Candidate{}, lastErr
		}
		metrics.RecordRetry(source)
		backoff := r.retry.Backoff(attempt)
		r.logger.Warn("fetch retry",
			zap.String("key", key),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return Candidate{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func issueKind(err error) string {
	var (
		fe *FetchError
		pe *ParseError
	)
	switch {
	case errors.As(err, &fe):
		return "fetch"
	case errors.As(err, &pe):
		return "parse"
	case errors.Is(err, ErrAmbiguousMatch):
		return "ambiguous"
	default:
		return "error"
	}
}
