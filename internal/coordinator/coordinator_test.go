package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/pipeline"
	"github.com/kaishamap/company-pipeline/internal/storage/memory"
)

func testCandidate() pipeline.Candidate {
	return pipeline.Candidate{
		Company: pipeline.CompanyRecord{
			CorporateNumber:   "1234567890123",
			Name:              "テスト株式会社",
			NormalizedName:    "テスト",
			Address:           "東京都千代田区丸の内１－２－３",
			NormalizedAddress: "東京都千代田区丸の内-１２３",
			IsActive:          true,
		},
		Observation: &pipeline.Observation{
			Count:        42,
			ObservedDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestApplyNewCompanyInsertsBoth(t *testing.T) {
	t.Parallel()

	store := memory.New()
	c := New(store, zap.NewNop())
	ctx := context.Background()

	outcome, err := c.Apply(ctx, pipeline.MatchDecision{Kind: pipeline.MatchNewCompany}, testCandidate())
	require.NoError(t, err)
	require.Equal(t, pipeline.OutcomeCreated, outcome)

	require.Equal(t, 1, store.CompanyCount())
	require.Equal(t, 1, store.ObservationTotal())

	rec, err := store.FindCompanyByCorporateNumber(ctx, "1234567890123")
	require.NoError(t, err)
	require.NotNil(t, rec)
	count, ok := store.ObservationCount(rec.ID, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	require.Equal(t, 42, count)
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.New()
	c := New(store, zap.NewNop())
	matcher := pipeline.NewMatcher(store)
	ctx := context.Background()
	cand := testCandidate()

	// First run: no existing company, so the record is new.
	decision, err := matcher.Reconcile(ctx, cand.Company)
	require.NoError(t, err)
	require.Equal(t, pipeline.MatchNewCompany, decision.Kind)
	_, err = c.Apply(ctx, decision, cand)
	require.NoError(t, err)

	// Identical re-run: resolves to update, overwrites nothing new.
	decision, err = matcher.Reconcile(ctx, cand.Company)
	require.NoError(t, err)
	require.Equal(t, pipeline.MatchUpdateExisting, decision.Kind)
	_, err = c.Apply(ctx, decision, cand)
	require.NoError(t, err)

	require.Equal(t, 1, store.CompanyCount())
	require.Equal(t, 1, store.ObservationTotal())

	rec, err := store.FindCompanyByCorporateNumber(ctx, "1234567890123")
	require.NoError(t, err)
	count, ok := store.ObservationCount(rec.ID, cand.Observation.ObservedDate)
	require.True(t, ok)
	require.Equal(t, 42, count)
}

func TestApplyObservationOverwritesSameDate(t *testing.T) {
	t.Parallel()

	store := memory.New()
	c := New(store, zap.NewNop())
	ctx := context.Background()

	cand := testCandidate()
	_, err := c.Apply(ctx, pipeline.MatchDecision{Kind: pipeline.MatchNewCompany}, cand)
	require.NoError(t, err)

	rec, err := store.FindCompanyByCorporateNumber(ctx, "1234567890123")
	require.NoError(t, err)

	// A correction for the same date replaces the point rather than adding one.
	corrected := cand
	corrected.Observation = &pipeline.Observation{Count: 45, ObservedDate: cand.Observation.ObservedDate}
	_, err = c.Apply(ctx, pipeline.MatchDecision{Kind: pipeline.MatchUpdateExisting, ExistingID: rec.ID}, corrected)
	require.NoError(t, err)

	require.Equal(t, 1, store.ObservationTotal())
	count, _ := store.ObservationCount(rec.ID, cand.Observation.ObservedDate)
	require.Equal(t, 45, count)
}

func TestApplyUpdateTouchesOnlyMutableFields(t *testing.T) {
	t.Parallel()

	store := memory.New()
	c := New(store, zap.NewNop())
	ctx := context.Background()

	cand := testCandidate()
	_, err := c.Apply(ctx, pipeline.MatchDecision{Kind: pipeline.MatchNewCompany}, cand)
	require.NoError(t, err)
	rec, err := store.FindCompanyByCorporateNumber(ctx, "1234567890123")
	require.NoError(t, err)

	moved := cand
	moved.Company.Address = "大阪府大阪市北区梅田２－４"
	moved.Company.CorporateNumber = "9999999999999" // must not overwrite
	moved.Observation = nil
	_, err = c.Apply(ctx, pipeline.MatchDecision{Kind: pipeline.MatchUpdateExisting, ExistingID: rec.ID}, moved)
	require.NoError(t, err)

	after, err := store.FindCompanyByCorporateNumber(ctx, "1234567890123")
	require.NoError(t, err)
	require.NotNil(t, after, "corporate number must survive the update")
	require.Equal(t, "大阪府大阪市北区梅田２－４", after.Address)
}

func TestApplySkipWritesNothing(t *testing.T) {
	t.Parallel()

	store := memory.New()
	c := New(store, zap.NewNop())

	outcome, err := c.Apply(
		context.Background(),
		pipeline.MatchDecision{Kind: pipeline.MatchDuplicateSkip, Reason: "ambiguous"},
		testCandidate(),
	)
	require.NoError(t, err)
	require.Equal(t, pipeline.OutcomeSkipped, outcome)
	require.Equal(t, 0, store.CompanyCount())
	require.Equal(t, 0, store.ObservationTotal())
}

func TestApplyNewCompanyRequiresName(t *testing.T) {
	t.Parallel()

	store := memory.New()
	c := New(store, zap.NewNop())

	cand := testCandidate()
	cand.Company.Name = ""
	_, err := c.Apply(context.Background(), pipeline.MatchDecision{Kind: pipeline.MatchNewCompany}, cand)
	require.Error(t, err)
	require.Equal(t, 0, store.CompanyCount())
}
