package testutil

import (
	"github.com/kernelmesh/kernelmesh/session"
)

// SnapshotStateBuilder constructs session snapshot payloads for tests.
type SnapshotStateBuilder struct {
	payload session.SnapshotState
}

// NewSnapshotStateBuilder creates a builder with a default identity.
func NewSnapshotStateBuilder() *SnapshotStateBuilder {
	return &SnapshotStateBuilder{payload: session.SnapshotState{
		SessionID: "session-1",
		ThreadID:  "thread-1",
		TenantID:  "tenant-1",
	}}
}

// Session sets the session ID (chainable).
func (b *SnapshotStateBuilder) Session(id string) *SnapshotStateBuilder {
	b.payload.SessionID = id
	return b
}

// Thread sets the thread ID (chainable).
func (b *SnapshotStateBuilder) Thread(id string) *SnapshotStateBuilder {
	b.payload.ThreadID = id
	return b
}

// Tenant sets the tenant ID (chainable).
func (b *SnapshotStateBuilder) Tenant(id string) *SnapshotStateBuilder {
	b.payload.TenantID = id
	return b
}

// Context merges one context-data field (chainable).
func (b *SnapshotStateBuilder) Context(key string, value any) *SnapshotStateBuilder {
	if b.payload.ContextData == nil {
		b.payload.ContextData = make(map[string]any)
	}
	b.payload.ContextData[key] = value
	return b
}

// Exchange appends one conversation entry (chainable).
func (b *SnapshotStateBuilder) Exchange(input, output string) *SnapshotStateBuilder {
	b.payload.ConversationHistory = append(b.payload.ConversationHistory, session.ConversationEntry{
		Input:  input,
		Output: output,
	})
	return b
}

// State sets one namespaced state value (chainable).
func (b *SnapshotStateBuilder) State(namespace, key string, value any) *SnapshotStateBuilder {
	if b.payload.Namespaces == nil {
		b.payload.Namespaces = make(map[string]map[string]any)
	}
	if b.payload.Namespaces[namespace] == nil {
		b.payload.Namespaces[namespace] = make(map[string]any)
	}
	b.payload.Namespaces[namespace][key] = value
	return b
}

// Build materializes the payload.
func (b *SnapshotStateBuilder) Build() session.SnapshotState {
	return b.payload
}
