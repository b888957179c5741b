package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/a11y-tracker/internal/store"
)

// RunStore keeps run history in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.Run
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.Run)}
}

// StartRun records a running row unless the run is already known.
func (s *RunStore) StartRun(_ context.Context, id uuid.UUID, site, targetURL string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; ok {
		return nil
	}
	s.runs[id] = store.Run{
		ID:        id,
		Site:      site,
		TargetURL: targetURL,
		StartedAt: startedAt,
		Status:    store.RunRunning,
		Stage:     "locked",
	}
	return nil
}

// FinishRun upserts the final state, keeping the recorded start time.
func (s *RunStore) FinishRun(_ context.Context, run store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.runs[run.ID]; ok {
		run.StartedAt = prev.StartedAt
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun returns one run.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns filters and pages runs newest first.
func (s *RunStore) ListRuns(_ context.Context, filter store.RunFilter) ([]store.Run, error) {
	s.mu.RLock()
	out := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.Site != "" && run.Site != filter.Site {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if filter.Offset >= len(out) {
		return []store.Run{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}
