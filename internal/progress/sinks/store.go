package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/progress"
	"github.com/JakeFAU/a11y-tracker/internal/store"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// StoreSink records run history through a store.RunRepository. Only the
// lock acquisition and the final event touch the repository.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run starts and finishes. Repository errors are returned
// as is after the first failure.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		switch {
		case evt.Final():
			if err := s.repo.FinishRun(ctx, finishedRun(evt)); err != nil {
				return fmt.Errorf("finish run: %w", err)
			}
		case evt.Stage == tracker.StageLocked:
			if err := s.repo.StartRun(ctx, evt.RunUUID(), evt.Site, evt.URL, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		}
	}
	return nil
}

func finishedRun(evt progress.Event) store.Run {
	finished := evt.TS
	run := store.Run{
		ID:         evt.RunUUID(),
		Site:       evt.Site,
		TargetURL:  evt.URL,
		StartedAt:  evt.TS.Add(-evt.Dur),
		FinishedAt: &finished,
		Status:     store.RunStatus(evt.Status),
		Stage:      string(evt.Stage),
		Records:    evt.Records,
		Total:      evt.Total,
		SheetURL:   evt.SheetURL,
	}
	if evt.Status == tracker.StatusFailed {
		run.Stage = string(evt.FailedStage)
	}
	if evt.Status == tracker.StatusSuccess {
		score := evt.Score
		run.Score = &score
	}
	if evt.Note != "" {
		note := evt.Note
		run.ErrorMessage = &note
	}
	return run
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
