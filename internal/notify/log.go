package notify

import (
	"context"
	"log/slog"

	"github.com/ashureev/collabsync/internal/domain"
)

// LogSink writes every notification to a structured logger. Errors are logged
// at Warn while retries remain and at Error once they are exhausted.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Consume implements Sink.
func (s *LogSink) Consume(ctx context.Context, n domain.Notification) error {
	level := slog.LevelInfo
	if n.Name == domain.EventError {
		level = slog.LevelWarn
		attempt, ok1 := n.Event["attempt"].(int)
		maxAttempts, ok2 := n.Event["maxAttempts"].(int)
		if !ok1 || !ok2 || attempt >= maxAttempts {
			level = slog.LevelError
		}
	}

	attrs := make([]any, 0, len(n.Event)*2+2)
	attrs = append(attrs, "notification", n.Name)
	for k, v := range n.Event {
		attrs = append(attrs, k, v)
	}
	s.logger.Log(ctx, level, "Session notification", attrs...)
	return nil
}
