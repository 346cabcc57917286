// Package observability defines the structured event boundary through which
// the kernel reports lifecycle activity (session created/expired/recovered,
// snapshot written/restored, quota and rate-limit denials) to an injected
// sink. The kernel does not define the sink's output format; implementations
// here cover structured logs (SlogSink), metrics (OTelSink), fan-out
// (MultiSink) and silence (NoOpSink).
package observability

import (
	"context"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventSessionCreated   EventType = "session.created"
	EventSessionExpired   EventType = "session.expired"
	EventSessionRecovered EventType = "session.recovered"
	EventSessionEvicted   EventType = "session.evicted"
	EventSessionClosed    EventType = "session.closed"
	EventSnapshotWritten  EventType = "snapshot.written"
	EventSnapshotRestored EventType = "snapshot.restored"
	EventQuotaDenied      EventType = "quota.denied"
	EventRateLimitDenied  EventType = "ratelimit.denied"
	EventTenantDenied     EventType = "tenant.denied"
	EventContextCreated   EventType = "context.created"
	EventContextDestroyed EventType = "context.destroyed"
)

// Event is a single observability record. Data carries event-specific
// attributes (tenant_id, session_id, snapshot_hash, error_code, ...).
type Event struct {
	Type      EventType
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// NewEvent builds an event stamped with the current UTC time.
func NewEvent(eventType EventType, source string, data map[string]any) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Source: source, Data: data}
}

// Sink receives lifecycle events. Implementations must be safe for
// concurrent use and should never block the caller for long; drop or buffer
// instead.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}
