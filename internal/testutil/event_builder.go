package testutil

import (
	"time"

	"github.com/kernelmesh/kernelmesh/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Type("step.completed").Execution("exec-1").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	id            string
	eventType     string
	executionID   string
	correlationID string
	timestamp     time.Time
	data          map[string]any
}

// NewEventBuilder creates a builder with default type "test.event".
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{eventType: "test.event", timestamp: time.Unix(1748000000, 0).UTC()}
}

// ID overrides the auto-generated event ID (chainable). Use where
// determinism matters.
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// Type sets the event type (chainable).
func (b *EventBuilder) Type(t string) *EventBuilder { b.eventType = t; return b }

// Execution binds the event to an execution context (chainable).
func (b *EventBuilder) Execution(id string) *EventBuilder { b.executionID = id; return b }

// Correlation sets the correlation ID (chainable).
func (b *EventBuilder) Correlation(id string) *EventBuilder { b.correlationID = id; return b }

// At sets the event timestamp (chainable).
func (b *EventBuilder) At(ts time.Time) *EventBuilder { b.timestamp = ts; return b }

// Data sets one payload field (chainable).
func (b *EventBuilder) Data(key string, value any) *EventBuilder {
	if b.data == nil {
		b.data = make(map[string]any)
	}
	b.data[key] = value
	return b
}

// Build materializes the event.
func (b *EventBuilder) Build() core.Event {
	id := b.id
	if id == "" {
		id = core.NewID()
	}
	return core.Event{
		ID:            id,
		Type:          b.eventType,
		ExecutionID:   b.executionID,
		CorrelationID: b.correlationID,
		Timestamp:     b.timestamp,
		Data:          b.data,
	}
}
