package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/progress"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// LogSink writes one structured line per run event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event. Final events are logged at info, failures at warn
// and intermediate transitions at debug.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("site", evt.Site),
			zap.String("stage", string(evt.Stage)),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Attempts > 0 {
			fields = append(fields, zap.Int("attempts", evt.Attempts))
		}
		if evt.Records > 0 || evt.Final() {
			fields = append(fields, zap.Int64("records", evt.Records))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch {
		case evt.Status == tracker.StatusFailed:
			fields = append(fields, zap.String("failed_stage", string(evt.FailedStage)))
			s.logger.Warn("run finished", fields...)
		case evt.Final():
			fields = append(fields, zap.String("status", string(evt.Status)), zap.String("sheet_url", evt.SheetURL))
			s.logger.Info("run finished", fields...)
		default:
			s.logger.Debug("run stage", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
