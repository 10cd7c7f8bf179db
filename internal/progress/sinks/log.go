package sinks

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-poller/internal/progress"
)

// LogSink emits structured logs for poll event streams. It is useful during
// development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields. Failures and
// abandoned sessions log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("session_id", uuid.UUID(evt.SessionID)),
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.Int("tick", evt.Tick),
			zap.Float64("progress", evt.Progress),
			zap.String("message", evt.Message),
			zap.Int("status_code", evt.StatusCode),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageTickFailure, progress.StageSessionAbandoned:
			s.logger.Warn("poll event", fields...)
		default:
			s.logger.Info("poll event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
