package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NumberLookup resolves a company name and address to its corporate number.
// Implemented by the registry adapter.
type NumberLookup interface {
	Source() string
	LookupCorporateNumber(ctx context.Context, name, address string) (string, error)
}

// Linker fills corporate numbers for profile-site rows that are not yet tied
// to a company. Each resolved number either finds the existing company or
// creates a minimal one, then records the link; unresolved rows stay
// unlinked and reappear in the next run.
type Linker struct {
	profiles ProfileStore
	store    Store
	lookup   NumberLookup
	pacer    Pacer
	retry    *RetryPolicy
	clock    Clock
	logger   *zap.Logger
}

// NewLinker wires a link run.
func NewLinker(
	profiles ProfileStore,
	store Store,
	lookup NumberLookup,
	pacer Pacer,
	retry *RetryPolicy,
	clock Clock,
	logger *zap.Logger,
) *Linker {
	if retry == nil {
		retry = NewRetryPolicy(0)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{
		profiles: profiles,
		store:    store,
		lookup:   lookup,
		pacer:    pacer,
		retry:    retry,
		clock:    clock,
		logger:   logger,
	}
}

// Run links one batch of unlinked rows for source. limit <= 0 takes every
// unlinked row. Cancellation stops between rows, like the driver loop.
func (l *Linker) Run(ctx context.Context, source string, limit int) Summary {
	sum := Summary{
		RunID:   uuid.NewString(),
		Source:  source,
		Started: l.clock.Now(),
	}

	rows, err := l.profiles.UnlinkedProfileCompanies(ctx, source, limit)
	if err != nil {
		sum.Failed++
		sum.Issues = append(sum.Issues, Issue{Kind: "storage", Detail: err.Error()})
		sum.Finished = l.clock.Now()
		return sum
	}
	l.logger.Info("link run started",
		zap.String("run_id", sum.RunID),
		zap.String("source", source),
		zap.Int("unlinked", len(rows)),
	)

	for _, row := range rows {
		if ctx.Err() != nil {
			l.logger.Warn("link run canceled", zap.String("run_id", sum.RunID))
			break
		}
		l.linkRow(ctx, row, &sum)
	}

	sum.Finished = l.clock.Now()
	l.logger.Info("link run finished",
		zap.String("run_id", sum.RunID),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("skipped", sum.Skipped),
		zap.Int("not_found", sum.NotFound),
		zap.Int("failed", sum.Failed),
	)
	return sum
}

func (l *Linker) linkRow(ctx context.Context, row ProfileCompany, sum *Summary) {
	key := fmt.Sprintf("%s/%d", row.Source, row.SourceKey)

	number, err := l.lookupWithRetry(ctx, row.Name, row.Address)
	switch {
	case errors.Is(err, ErrNotFound):
		sum.NotFound++
		l.logger.Debug("no registry match", zap.String("profile", key), zap.String("name", row.Name))
		return
	case errors.Is(err, ErrAmbiguousMatch):
		sum.Skipped++
		sum.Issues = append(sum.Issues, Issue{Key: key, Kind: "ambiguous", Detail: row.Name})
		return
	case err != nil:
		sum.Failed++
		sum.Issues = append(sum.Issues, Issue{Key: key, Kind: issueKind(err), Detail: err.Error()})
		l.logger.Error("registry lookup failed", zap.String("profile", key), zap.Error(err))
		return
	}

	var outcome Outcome
	err = l.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		existing, err := tx.FindCompanyByCorporateNumber(ctx, number)
		if err != nil {
			return err
		}
		var companyID string
		if existing != nil {
			companyID = existing.ID
			// The profile URL backfills a company that has none; a company
			// URL already on file wins.
			if existing.SourceURL == "" && row.URL != "" && row.URL != "-" {
				patched := *existing
				patched.SourceURL = row.URL
				if err := tx.UpdateCompanyFields(ctx, companyID, patched); err != nil {
					return err
				}
			}
			outcome = OutcomeUpdated
		} else {
			companyID, err = tx.UpsertCompany(ctx, CompanyRecord{
				CorporateNumber: number,
				Name:            row.Name,
				SourceURL:       row.URL,
			})
			if err != nil {
				return err
			}
			outcome = OutcomeCreated
		}
		// The link lands in the same transaction when the store carries the
		// profile tables too.
		if ps, ok := tx.(ProfileStore); ok {
			return ps.LinkProfileCompany(ctx, row.ID, companyID)
		}
		return l.profiles.LinkProfileCompany(ctx, row.ID, companyID)
	})
	if err != nil {
		sum.Failed++
		sum.Issues = append(sum.Issues, Issue{Key: key, Kind: "storage", Detail: err.Error()})
		l.logger.Error("link failed", zap.String("profile", key), zap.Error(err))
		return
	}
	switch outcome {
	case OutcomeCreated:
		sum.Created++
	case OutcomeUpdated:
		sum.Updated++
	}
}

func (l *Linker) lookupWithRetry(ctx context.Context, name, address string) (string, error) {
	source := l.lookup.Source()
	for attempt := 0; ; attempt++ {
		if l.pacer != nil {
			if err := l.pacer.Wait(ctx, source); err != nil {
				return "", err
			}
		}
		number, err := l.lookup.LookupCorporateNumber(ctx, name, address)
		if err == nil {
			return number, nil
		}
		if !l.retry.ShouldRetry(err, attempt) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.retry.Backoff(attempt)):
		}
	}
}
