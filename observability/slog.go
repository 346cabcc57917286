package observability

import (
	"context"
	"log/slog"
)

// SlogSink writes events as structured log records via slog.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink over the given slog logger; nil falls back to
// slog.Default().
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Emit logs the event with its data map flattened into attributes. Denial
// events log at warn, everything else at info.
func (s *SlogSink) Emit(ctx context.Context, ev Event) {
	attrs := make([]slog.Attr, 0, len(ev.Data)+2)
	attrs = append(attrs, slog.String("event", string(ev.Type)))
	if ev.Source != "" {
		attrs = append(attrs, slog.String("source", ev.Source))
	}
	for k, v := range ev.Data {
		attrs = append(attrs, slog.Any(k, v))
	}

	level := slog.LevelInfo
	switch ev.Type {
	case EventQuotaDenied, EventRateLimitDenied, EventTenantDenied:
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, string(ev.Type), attrs...)
}
