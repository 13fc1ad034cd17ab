package outbox

import (
	"context"
	"log/slog"
)

// LogSink delivers outbox events by logging them. It is the default
// Sink for standalone deployments that have not wired a message broker
// or webhook fanout; embedders typically replace it with one that
// forwards to their own subscribers (spec §4.6).
type LogSink struct {
	log *slog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}

	return &LogSink{log: log}
}

func (s *LogSink) Deliver(_ context.Context, e *Event) error {
	s.log.Info("outbox: event",
		slog.String("event_id", e.ID.String()),
		slog.String("aggregate_id", e.AggregateID.String()),
		slog.Int64("sequence", e.Sequence),
		slog.String("kind", string(e.Kind)),
		slog.String("payload", string(e.Payload)))

	return nil
}
