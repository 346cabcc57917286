package session

import (
	"time"

	"github.com/kernelmesh/kernelmesh/core"
	"github.com/kernelmesh/kernelmesh/state"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive sessions accept work and conversation entries.
	StatusActive Status = "active"
	// StatusPaused sessions have been checkpointed and await resume.
	StatusPaused Status = "paused"
	// StatusExpired sessions idled past the timeout; terminal.
	StatusExpired Status = "expired"
	// StatusClosed sessions were ended explicitly; terminal.
	StatusClosed Status = "closed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool { return s == StatusExpired || s == StatusClosed }

// ConversationEntry is one exchange in a session's conversation history.
// The history is append-only and bounded: when it overflows, the oldest
// entries are dropped first.
type ConversationEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Input     string         `json:"input"`
	Output    string         `json:"output"`
	AgentName string         `json:"agentName,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is a long-lived conversational/task unit that may outlive any
// single execution context. Sessions are owned by a Registry; the struct
// carries no lock because all mutation is serialized by the registry, and
// lookups hand out clones.
type Session struct {
	ID                  string              `json:"id"`
	ThreadID            string              `json:"threadId"`
	TenantID            string              `json:"tenantId"`
	CreatedAt           time.Time           `json:"createdAt"`
	LastActivity        time.Time           `json:"lastActivity"`
	Status              Status              `json:"status"`
	Metadata            map[string]string   `json:"metadata,omitempty"`
	ContextData         map[string]any      `json:"contextData,omitempty"`
	ConversationHistory []ConversationEntry `json:"conversationHistory,omitempty"`
	Events              []core.Event        `json:"events,omitempty"`

	// StateHandle locates the session's namespaced state in the registry's
	// arena. Empty once the state has been released.
	StateHandle state.Handle `json:"-"`
}

// Clone returns a deep copy safe for use outside the registry lock.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Metadata = make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		cp.Metadata[k] = v
	}
	cp.ContextData = make(map[string]any, len(s.ContextData))
	for k, v := range s.ContextData {
		cp.ContextData[k] = v
	}
	cp.ConversationHistory = append([]ConversationEntry(nil), s.ConversationHistory...)
	cp.Events = append([]core.Event(nil), s.Events...)
	return &cp
}

// SnapshotState is the state payload embedded in a session snapshot. It
// captures everything needed to reconstruct the session after a restart:
// identity, conversation, context data and the exported namespaced state.
type SnapshotState struct {
	SessionID           string                    `json:"sessionId"`
	ThreadID            string                    `json:"threadId"`
	TenantID            string                    `json:"tenantId"`
	Metadata            map[string]string         `json:"metadata,omitempty"`
	ContextData         map[string]any            `json:"contextData,omitempty"`
	ConversationHistory []ConversationEntry       `json:"conversationHistory,omitempty"`
	Namespaces          map[string]map[string]any `json:"namespaces,omitempty"`
}
