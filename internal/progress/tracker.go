// Package progress keeps an in-memory record of recent pipeline runs so the
// operational API can report what the process has been doing.
package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

// Status is the terminal state of a tracked run.
type Status string

// Run statuses.
const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Run is one command invocation as seen by the tracker.
type Run struct {
	ID         uuid.UUID
	Command    string
	Source     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     Status
	Error      string
	Summary    pipeline.Summary
}

const defaultKeep = 100

// Tracker records runs in memory, keeping the most recent ones. Safe for
// concurrent use.
type Tracker struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*Run
	keep int
	now  func() time.Time
}

// NewTracker returns a Tracker that retains the latest defaultKeep runs.
func NewTracker() *Tracker {
	return &Tracker{
		runs: make(map[uuid.UUID]*Run),
		keep: defaultKeep,
		now:  time.Now,
	}
}

// Begin registers a new running entry and returns its id.
func (t *Tracker) Begin(command, source string) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.New()
	t.runs[id] = &Run{
		ID:        id,
		Command:   command,
		Source:    source,
		StartedAt: t.now(),
		Status:    StatusRunning,
	}
	t.evictLocked()
	return id
}

// Finish marks the run done, recording the summary and, when err is non-nil,
// the error status. Unknown ids are ignored.
func (t *Tracker) Finish(id uuid.UUID, sum pipeline.Summary, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[id]
	if !ok {
		return
	}
	finished := t.now()
	run.FinishedAt = &finished
	run.Summary = sum
	if err != nil {
		run.Status = StatusError
		run.Error = err.Error()
	} else {
		run.Status = StatusSuccess
	}
}

// Get returns a copy of the run, if tracked.
func (t *Tracker) Get(id uuid.UUID) (Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// Recent returns up to limit runs, newest first. limit <= 0 means all.
func (t *Tracker) Recent(limit int) []Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Run, 0, len(t.runs))
	for _, run := range t.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// evictLocked drops the oldest finished runs beyond the retention cap.
func (t *Tracker) evictLocked() {
	if len(t.runs) <= t.keep {
		return
	}
	ordered := make([]*Run, 0, len(t.runs))
	for _, run := range t.runs {
		ordered = append(ordered, run)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StartedAt.Before(ordered[j].StartedAt)
	})
	for _, run := range ordered {
		if len(t.runs) <= t.keep {
			return
		}
		if run.Status == StatusRunning {
			continue
		}
		delete(t.runs, run.ID)
	}
}
