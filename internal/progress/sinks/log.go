package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/frontier-crawler/internal/progress"
)

// LogSink writes one structured log line per event. Useful during development
// when no external system is wired.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Name implements progress.NamedSink.
func (s *LogSink) Name() string { return "log" }

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("event_id", evt.ID.String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.URL != "" {
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.Int("depth", evt.Depth),
				zap.Int("max_depth", evt.MaxDepth))
		}
		if evt.ParentURL != "" {
			fields = append(fields, zap.String("parent_url", evt.ParentURL))
		}
		if evt.Classification != "" {
			fields = append(fields, zap.String("classification", evt.Classification))
		}
		if evt.StatusCode != 0 {
			fields = append(fields, zap.Int("status_code", evt.StatusCode), zap.Int64("bytes", evt.Bytes))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
