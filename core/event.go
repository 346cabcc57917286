package core

import (
	"time"

	"github.com/google/uuid"
)

// Event is an immutable record of something that happened during an
// execution. Events form the replayable history captured by snapshots, so
// their ordering is semantically significant: two histories containing the
// same events in a different order are different histories.
//
// Data carries event-specific payload fields. After emission an Event should
// be treated as read-only.
type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	ExecutionID   string         `json:"executionId,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event of the given type bound to an execution context.
// The timestamp is captured in UTC at creation time.
func NewEvent(executionID, eventType string) Event {
	return Event{
		ID:          NewID(),
		Type:        eventType,
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
	}
}

// NewDataEvent creates an event carrying an arbitrary payload map.
func NewDataEvent(executionID, eventType string, data map[string]any) Event {
	e := NewEvent(executionID, eventType)
	e.Data = data
	return e
}

// WithData returns a copy of the event with the payload field set.
func (e Event) WithData(key string, value any) Event {
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}

// UnixMillis returns the timestamp as milliseconds since the Unix epoch,
// the numeric form used by the snapshot wire format.
func (e Event) UnixMillis() int64 { return e.Timestamp.UnixMilli() }

// NewID generates a new unique identifier.
//
// Used for events, sessions, snapshots and execution contexts throughout the
// runtime. Returns the string form of a new UUID.
func NewID() string { return uuid.NewString() }
