// Package sinks contains progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/progress"
)

// LogSink emits structured logs for task progress streams.
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

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("task_id", evt.TaskID),
			zap.String("stage", string(evt.Stage)),
			zap.String("listing_type", string(evt.ListingType)),
			zap.Int("page", evt.Page),
			zap.Int("records", evt.Records),
			zap.String("source", string(evt.Source)),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
