package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/adapter"
	"github.com/kaishamap/company-pipeline/internal/pipeline"
	"github.com/kaishamap/company-pipeline/internal/storage/memory"
)

type stubBoard struct {
	pages    [][]string
	searched int
}

func (s *stubBoard) InitSession(context.Context) (*adapter.Session, error) {
	return &adapter.Session{ID: "test-session"}, nil
}

func (s *stubBoard) SearchPage(_ context.Context, _ *adapter.Session, page int) ([]string, bool, error) {
	s.searched++
	if page >= len(s.pages) {
		return nil, false, nil
	}
	return s.pages[page], page < len(s.pages)-1, nil
}

type listingFetcher struct{}

func (listingFetcher) Source() string { return "jobboard" }

func (listingFetcher) FetchCandidate(_ context.Context, key string) (pipeline.Candidate, error) {
	return pipeline.Candidate{
		Company: pipeline.CompanyRecord{
			CorporateNumber: key,
			Name:            "求人テスト株式会社" + key,
			IsActive:        true,
		},
		Listing: &pipeline.JobListing{JobNumber: key, Title: "事務員"},
	}, nil
}

func TestJobPagesDedupesAcrossPages(t *testing.T) {
	store := memory.New()
	runner := newSyncRunner(listingFetcher{}, store)
	board := &stubBoard{pages: [][]string{
		{"2000000000001", "2000000000002"},
		{"2000000000002", "2000000000003"},
	}}

	total, err := jobPages(context.Background(), zap.NewNop(), board, runner, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 3, total.Created)
	require.Equal(t, 2, board.searched)

	rec, err := store.FindCompanyByCorporateNumber(context.Background(), "2000000000003")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestJobPagesHonorsMaxPages(t *testing.T) {
	store := memory.New()
	runner := newSyncRunner(listingFetcher{}, store)
	board := &stubBoard{pages: [][]string{
		{"2000000000001"},
		{"2000000000002"},
		{"2000000000003"},
	}}

	total, err := jobPages(context.Background(), zap.NewNop(), board, runner, 1, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total.Created)
	require.Equal(t, 1, board.searched)
}

type cancellingFetcher struct {
	listingFetcher
	cancel context.CancelFunc
}

func (f cancellingFetcher) FetchCandidate(ctx context.Context, key string) (pipeline.Candidate, error) {
	f.cancel()
	return f.listingFetcher.FetchCandidate(ctx, key)
}

func TestJobPagesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.New()
	runner := newSyncRunner(cancellingFetcher{cancel: cancel}, store)
	board := &stubBoard{pages: [][]string{
		{"2000000000001"},
		{"2000000000002"},
		{"2000000000003"},
	}}

	total, err := jobPages(ctx, zap.NewNop(), board, runner, 0, time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, total.Created)
}
