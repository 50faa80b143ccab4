package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orefield/specharvest/internal/specs"
)

// RunStore provides an in-memory run tracker for development/testing.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]specs.RunRecord
	clock specs.Clock
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewRunStore constructs a RunStore. A nil clock uses system time.
func NewRunStore(clock specs.Clock) *RunStore {
	if clock == nil {
		clock = systemClock{}
	}
	return &RunStore{
		runs:  make(map[string]specs.RunRecord),
		clock: clock,
	}
}

// StartRun records a run entering the running state.
func (s *RunStore) StartRun(_ context.Context, item specs.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.runs[item.RunID]; ok {
		existing.Status = specs.RunRunning
		s.runs[item.RunID] = existing
		return nil
	}
	s.runs[item.RunID] = specs.RunRecord{
		RunID:          item.RunID,
		Brand:          item.Brand,
		Model:          item.Model,
		EquipmentClass: item.EquipmentClass,
		StartedAt:      s.clock.Now(),
		Status:         specs.RunRunning,
	}
	return nil
}

// CompleteRun marks a run finished with its terminal status and counters.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID string,
	status specs.RunStatus,
	errText string,
	counters specs.RunCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return specs.ErrRunNotFound
	}
	now := s.clock.Now()
	run.FinishedAt = &now
	run.Status = status
	run.Error = errText
	run.Counters = counters
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (specs.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return specs.RunRecord{}, specs.ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns runs newest-first, optionally filtered by status.
func (s *RunStore) ListRuns(
	_ context.Context,
	status *specs.RunStatus,
	limit, offset int,
) ([]specs.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []specs.RunRecord
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
