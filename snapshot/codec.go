package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kernelmesh/kernelmesh/core"
)

// Codec creates, validates and diffs snapshots. It is stateless and safe for
// concurrent use.
type Codec struct{}

// NewCodec returns a snapshot codec.
func NewCodec() *Codec { return &Codec{} }

// CreateOption customizes snapshot creation.
type CreateOption func(*Snapshot)

// WithTimestamp overrides the capture timestamp (milliseconds since epoch).
// Primarily used by tests and replay tooling.
func WithTimestamp(ts int64) CreateOption {
	return func(s *Snapshot) { s.Timestamp = ts }
}

// Create builds a full snapshot over the given events and state. The state
// is canonicalized to its JSON object form so the recorded hash remains
// valid after a persistence round trip.
func (c *Codec) Create(executionContextID string, events []core.Event, state any, optFns ...CreateOption) (*Snapshot, error) {
	canonState, err := canonicalize(state)
	if err != nil {
		return nil, fmt.Errorf("canonicalize state: %w", err)
	}

	snap := &Snapshot{
		ExecutionContextID: executionContextID,
		Timestamp:          time.Now().UnixMilli(),
		Events:             append([]core.Event(nil), events...),
		State:              canonState,
	}
	for _, fn := range optFns {
		fn(snap)
	}

	hash, err := c.digest(snap.Events, snap.State)
	if err != nil {
		return nil, err
	}
	snap.Hash = hash
	return snap, nil
}

// Hash returns the deterministic digest of an arbitrary value. Map keys do
// not influence ordering; array element order does.
func (c *Codec) Hash(value any) (string, error) {
	data, err := canonicalJSON(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

// Validate recomputes a full snapshot's digest and compares it against the
// recorded hash. A mismatch is a CorruptError, never silently repaired.
func (c *Codec) Validate(snap *Snapshot) error {
	if snap == nil {
		return &CorruptError{Reason: "nil snapshot"}
	}
	if snap.IsDelta {
		return &CorruptError{Hash: snap.Hash, Reason: "delta snapshot requires ValidateDelta"}
	}
	computed, err := c.digest(snap.Events, snap.State)
	if err != nil {
		return err
	}
	if computed != snap.Hash {
		return &CorruptError{Hash: snap.Hash, Computed: computed}
	}
	return nil
}

// ValidateDelta verifies a delta snapshot against its base: the base must be
// a valid full snapshot, the delta must reference it by hash, and the
// delta's own digest must match.
func (c *Codec) ValidateDelta(delta, base *Snapshot) error {
	if delta == nil || !delta.IsDelta {
		return &CorruptError{Reason: "not a delta snapshot"}
	}
	if err := c.Validate(base); err != nil {
		return err
	}
	if delta.BaseHash != base.Hash {
		return &CorruptError{Hash: delta.Hash, Reason: fmt.Sprintf("delta base %s does not match snapshot %s", delta.BaseHash, base.Hash)}
	}
	computed, err := c.deltaDigest(delta.BaseHash, delta.EventsDelta, delta.StateDelta)
	if err != nil {
		return err
	}
	if computed != delta.Hash {
		return &CorruptError{Hash: delta.Hash, Computed: computed}
	}
	return nil
}

// Diff produces the smallest representable delta from a to b such that
// Apply(a, Diff(a, b)) reproduces b. When no meaningful reduction is
// possible (a is nil, a's events are not a prefix of b's, either state is
// not map-shaped, or the delta's content encodes larger than b's), Diff
// degrades gracefully to a full copy of b.
func (c *Codec) Diff(a, b *Snapshot) (*Snapshot, error) {
	if b == nil {
		return nil, fmt.Errorf("diff target must not be nil")
	}
	if a == nil || a.IsDelta || b.IsDelta {
		return b.Clone(), nil
	}

	if !eventsArePrefix(a.Events, b.Events) {
		return b.Clone(), nil
	}

	aState, aOK := a.State.(map[string]any)
	bState, bOK := b.State.(map[string]any)
	if !aOK || !bOK {
		return b.Clone(), nil
	}

	stateDelta, err := diffState(aState, bState)
	if err != nil {
		return nil, err
	}

	delta := &Snapshot{
		ExecutionContextID: b.ExecutionContextID,
		Timestamp:          b.Timestamp,
		IsDelta:            true,
		BaseHash:           a.Hash,
		EventsDelta:        append([]core.Event(nil), b.Events[len(a.Events):]...),
		StateDelta:         stateDelta,
	}
	delta.Hash, err = c.deltaDigest(delta.BaseHash, delta.EventsDelta, delta.StateDelta)
	if err != nil {
		return nil, err
	}

	if larger, err := deltaEncodesLarger(delta, b); err != nil {
		return nil, err
	} else if larger {
		return b.Clone(), nil
	}
	return delta, nil
}

// Apply reconstructs the full snapshot encoded by base + delta. Passing a
// full snapshot as delta returns a copy of it unchanged. The reconstructed
// snapshot's hash is recomputed over the merged content, so it equals the
// hash of the snapshot the delta was diffed from.
func (c *Codec) Apply(base, delta *Snapshot) (*Snapshot, error) {
	if delta == nil {
		return nil, fmt.Errorf("delta must not be nil")
	}
	if !delta.IsDelta {
		return delta.Clone(), nil
	}
	if err := c.ValidateDelta(delta, base); err != nil {
		return nil, err
	}

	events := append([]core.Event(nil), base.Events...)
	events = append(events, delta.EventsDelta...)

	state := base.State
	if delta.StateDelta != nil {
		baseState, _ := base.State.(map[string]any)
		merged := make(map[string]any, len(baseState)+len(delta.StateDelta.Set))
		for k, v := range baseState {
			merged[k] = v
		}
		for k, v := range delta.StateDelta.Set {
			merged[k] = v
		}
		for _, k := range delta.StateDelta.Removed {
			delete(merged, k)
		}
		state = merged
	}

	snap := &Snapshot{
		ExecutionContextID: delta.ExecutionContextID,
		Timestamp:          delta.Timestamp,
		Events:             events,
		State:              state,
	}
	hash, err := c.digest(snap.Events, snap.State)
	if err != nil {
		return nil, err
	}
	snap.Hash = hash
	return snap, nil
}

// digest hashes the (events, state) pair of a full snapshot.
func (c *Codec) digest(events []core.Event, state any) (string, error) {
	return c.Hash(map[string]any{
		"events": events,
		"state":  state,
	})
}

// deltaDigest hashes the content of a delta snapshot, binding it to its base.
func (c *Codec) deltaDigest(baseHash string, eventsDelta []core.Event, stateDelta *StateDelta) (string, error) {
	return c.Hash(map[string]any{
		"baseHash":    baseHash,
		"eventsDelta": eventsDelta,
		"stateDelta":  stateDelta,
	})
}

// canonicalize round-trips a value through JSON, normalizing structs and
// typed maps into the generic object form with deterministic key ordering.
func canonicalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// canonicalJSON renders a value in its canonical encoded form. encoding/json
// sorts map keys, so logically equal maps encode identically regardless of
// insertion order.
func canonicalJSON(v any) ([]byte, error) {
	canon, err := canonicalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(canon)
}

func eventsArePrefix(prefix, full []core.Event) bool {
	if len(prefix) > len(full) {
		return false
	}
	a, err := canonicalJSON(prefix)
	if err != nil {
		return false
	}
	b, err := canonicalJSON(full[:len(prefix)])
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// diffState computes the key-level difference between two map states.
func diffState(a, b map[string]any) (*StateDelta, error) {
	delta := &StateDelta{Set: map[string]any{}}
	for k, bv := range b {
		av, ok := a[k]
		if !ok {
			delta.Set[k] = bv
			continue
		}
		same, err := jsonEqual(av, bv)
		if err != nil {
			return nil, err
		}
		if !same {
			delta.Set[k] = bv
		}
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			delta.Removed = append(delta.Removed, k)
		}
	}
	// Keep removals in a stable order so equal inputs produce equal digests.
	sort.Strings(delta.Removed)
	if len(delta.Set) == 0 {
		delta.Set = nil
	}
	return delta, nil
}

func jsonEqual(a, b any) (bool, error) {
	aj, err := canonicalJSON(a)
	if err != nil {
		return false, err
	}
	bj, err := canonicalJSON(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(aj, bj), nil
}

// deltaEncodesLarger compares only the variable content of the two forms;
// the envelope (ids, timestamp, hashes, flags) costs roughly the same either
// way. A tie keeps the delta.
func deltaEncodesLarger(delta, full *Snapshot) (bool, error) {
	var set map[string]any
	var removed []string
	if delta.StateDelta != nil {
		set = delta.StateDelta.Set
		removed = delta.StateDelta.Removed
	}
	deltaSize, err := encodedLen(delta.EventsDelta, set)
	if err != nil {
		return false, err
	}
	if len(removed) > 0 {
		n, err := encodedLen(removed)
		if err != nil {
			return false, err
		}
		deltaSize += n
	}
	fullSize, err := encodedLen(full.Events, full.State)
	if err != nil {
		return false, err
	}
	return deltaSize > fullSize, nil
}

func encodedLen(parts ...any) (int, error) {
	total := 0
	for _, p := range parts {
		data, err := json.Marshal(p)
		if err != nil {
			return 0, err
		}
		total += len(data)
	}
	return total, nil
}
