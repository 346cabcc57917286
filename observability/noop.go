package observability

import "context"

// NoOpSink discards all events. The default when no sink is injected.
type NoOpSink struct{}

// Emit discards the event.
func (NoOpSink) Emit(context.Context, Event) {}
