package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the runs.status column.
type RunStatus string

// Persisted statuses. Finished runs carry the tracker outcome.
const (
	RunRunning       RunStatus = "running"
	RunSuccess       RunStatus = RunStatus(tracker.StatusSuccess)
	RunLockContended RunStatus = RunStatus(tracker.StatusLockContended)
	RunFailed        RunStatus = RunStatus(tracker.StatusFailed)
)

// ParseRunStatus validates a status string from an API query.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch st := RunStatus(s); st {
	case RunRunning, RunSuccess, RunLockContended, RunFailed:
		return st, true
	default:
		return "", false
	}
}

// Run is one row of run history.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Site       string     `json:"site"`
	TargetURL  string     `json:"target_url"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	// Stage is the last stage reached, or the failing stage.
	Stage        string   `json:"stage"`
	Records      int64    `json:"records"`
	Total        int64    `json:"total"`
	Score        *float64 `json:"score,omitempty"`
	SheetURL     string   `json:"sheet_url,omitempty"`
	ErrorMessage *string  `json:"error,omitempty"`
}

// RunFilter narrows ListRuns. Empty fields match everything.
type RunFilter struct {
	Site   string
	Status RunStatus
	Limit  int
	Offset int
}

// RunRepository persists run history.
type RunRepository interface {
	// StartRun inserts a running row; repeating it is a no-op.
	StartRun(ctx context.Context, id uuid.UUID, site, targetURL string, startedAt time.Time) error
	// FinishRun upserts the final state of a run.
	FinishRun(ctx context.Context, run Run) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
}
