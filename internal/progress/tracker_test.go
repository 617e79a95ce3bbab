package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()

	id := tr.Begin("sync", "pension")
	run, ok := tr.Get(id)
	require.True(t, ok)
	require.Equal(t, StatusRunning, run.Status)
	require.Equal(t, "sync", run.Command)
	require.Nil(t, run.FinishedAt)

	tr.Finish(id, pipeline.Summary{Created: 3, Failed: 1}, nil)
	run, ok = tr.Get(id)
	require.True(t, ok)
	require.Equal(t, StatusSuccess, run.Status)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, 3, run.Summary.Created)
}

func TestTrackerFinishWithError(t *testing.T) {
	tr := NewTracker()

	id := tr.Begin("link", "houjin")
	tr.Finish(id, pipeline.Summary{}, errors.New("session expired"))

	run, ok := tr.Get(id)
	require.True(t, ok)
	require.Equal(t, StatusError, run.Status)
	require.Equal(t, "session expired", run.Error)
}

func TestTrackerRecentOrdersNewestFirst(t *testing.T) {
	tr := NewTracker()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	tr.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	first := tr.Begin("sync", "pension")
	second := tr.Begin("jobs", "jobboard")
	third := tr.Begin("link", "houjin")

	runs := tr.Recent(2)
	require.Len(t, runs, 2)
	require.Equal(t, third, runs[0].ID)
	require.Equal(t, second, runs[1].ID)

	runs = tr.Recent(0)
	require.Len(t, runs, 3)
	require.Equal(t, first, runs[2].ID)
}

func TestTrackerEvictsOldestFinished(t *testing.T) {
	tr := NewTracker()
	tr.keep = 2
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	tr.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	oldest := tr.Begin("sync", "pension")
	tr.Finish(oldest, pipeline.Summary{}, nil)
	running := tr.Begin("jobs", "jobboard")
	tr.Begin("link", "houjin")

	_, ok := tr.Get(oldest)
	require.False(t, ok, "finished run beyond the cap should be evicted")
	_, ok = tr.Get(running)
	require.True(t, ok, "running runs are never evicted")
}
