// Package coordinator applies match decisions to persistent storage, one
// transaction per record.
package coordinator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

// Coordinator writes matched records through the storage surface. Each Apply
// runs inside a single transaction, so a company insert and its first
// observation land atomically or not at all; the transaction is the unit of
// atomicity, never the whole batch.
type Coordinator struct {
	store  pipeline.Store
	logger *zap.Logger
}

// New builds a Coordinator.
func New(store pipeline.Store, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, logger: logger}
}

// Apply commits the decision. Re-running the same (company, observation)
// pair converges to the same end state: the company upsert is keyed on the
// corporate number and the observation upsert on (company, date).
func (c *Coordinator) Apply(ctx context.Context, decision pipeline.MatchDecision, cand pipeline.Candidate) (pipeline.Outcome, error) {
	switch decision.Kind {
	case pipeline.MatchDuplicateSkip:
		// Recorded for operator visibility; no write.
		c.logger.Warn("duplicate skipped",
			zap.String("name", cand.Company.Name),
			zap.String("corporate_number", cand.Company.CorporateNumber),
			zap.String("reason", decision.Reason),
		)
		return pipeline.OutcomeSkipped, nil

	case pipeline.MatchUpdateExisting:
		err := c.store.WithTx(ctx, func(ctx context.Context, tx pipeline.Store) error {
			if err := tx.UpdateCompanyFields(ctx, decision.ExistingID, cand.Company); err != nil {
				return fmt.Errorf("update company %s: %w", decision.ExistingID, err)
			}
			if err := upsertObservation(ctx, tx, decision.ExistingID, cand.Observation); err != nil {
				return err
			}
			return upsertListing(ctx, tx, cand.Listing)
		})
		if err != nil {
			return "", err
		}
		return pipeline.OutcomeUpdated, nil

	case pipeline.MatchNewCompany:
		if cand.Company.Name == "" {
			return "", fmt.Errorf("new company requires a name")
		}
		err := c.store.WithTx(ctx, func(ctx context.Context, tx pipeline.Store) error {
			id, err := tx.UpsertCompany(ctx, cand.Company)
			if err != nil {
				return fmt.Errorf("insert company %q: %w", cand.Company.Name, err)
			}
			if err := upsertObservation(ctx, tx, id, cand.Observation); err != nil {
				return err
			}
			return upsertListing(ctx, tx, cand.Listing)
		})
		if err != nil {
			return "", err
		}
		return pipeline.OutcomeCreated, nil

	default:
		return "", fmt.Errorf("unknown match decision %d", decision.Kind)
	}
}

func upsertListing(ctx context.Context, tx pipeline.Store, listing *pipeline.JobListing) error {
	if listing == nil {
		return nil
	}
	js, ok := tx.(pipeline.JobListingStore)
	if !ok {
		return fmt.Errorf("store cannot persist job listings")
	}
	if err := js.UpsertJobListing(ctx, *listing); err != nil {
		return fmt.Errorf("upsert listing %s: %w", listing.JobNumber, err)
	}
	return nil
}

func upsertObservation(ctx context.Context, tx pipeline.Store, companyID string, obs *pipeline.Observation) error {
	if obs == nil {
		return nil
	}
	if err := tx.UpsertObservation(ctx, companyID, obs.Count, obs.ObservedDate); err != nil {
		return fmt.Errorf("upsert observation for %s: %w", companyID, err)
	}
	return nil
}
