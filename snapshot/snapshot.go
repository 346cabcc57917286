package snapshot

import (
	"github.com/kernelmesh/kernelmesh/core"
)

// Snapshot is a content-hashed point-in-time capture of an execution's event
// history and state. A full snapshot carries the complete history; a delta
// snapshot (IsDelta true) encodes only the difference against a previously
// stored base identified by BaseHash.
//
// Field tags follow the wire format consumed by persistors and external
// tooling; the format is stable across process restarts for a given logical
// input.
type Snapshot struct {
	ExecutionContextID string       `json:"xcId"`
	Timestamp          int64        `json:"ts"`
	Events             []core.Event `json:"events,omitempty"`
	State              any          `json:"state,omitempty"`
	Hash               string       `json:"hash"`

	IsDelta     bool         `json:"isDelta,omitempty"`
	BaseHash    string       `json:"base,omitempty"`
	EventsDelta []core.Event `json:"eventsDelta,omitempty"`
	StateDelta  *StateDelta  `json:"patch,omitempty"`
}

// StateDelta encodes the difference between two map-shaped states: keys set
// or changed, and keys removed.
type StateDelta struct {
	Set     map[string]any `json:"set,omitempty"`
	Removed []string       `json:"removed,omitempty"`
}

// Clone returns a shallow copy of the snapshot with independent slices.
// State values are shared; callers treat snapshots as immutable after
// creation.
func (s *Snapshot) Clone() *Snapshot {
	cp := *s
	cp.Events = append([]core.Event(nil), s.Events...)
	cp.EventsDelta = append([]core.Event(nil), s.EventsDelta...)
	return &cp
}
