package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelmesh/kernelmesh/core"
)

func testEvents(n int) []core.Event {
	evs := make([]core.Event, 0, n)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < n; i++ {
		evs = append(evs, core.Event{
			ID:          string(rune('a' + i)),
			Type:        "step",
			ExecutionID: "xc-1",
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		})
	}
	return evs
}

func TestCodec_HashMapOrderIndependent(t *testing.T) {
	c := NewCodec()

	h1, err := c.Hash(map[string]any{"a": 1, "b": 2, "c": map[string]any{"x": 1, "y": 2}})
	require.NoError(t, err)
	h2, err := c.Hash(map[string]any{"c": map[string]any{"y": 2, "x": 1}, "b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestCodec_HashArrayOrderDependent(t *testing.T) {
	c := NewCodec()

	h1, err := c.Hash([]string{"first", "second"})
	require.NoError(t, err)
	h2, err := c.Hash([]string{"second", "first"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestCodec_HashStableAcrossStructAndMapForms(t *testing.T) {
	c := NewCodec()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	h1, err := c.Hash(payload{Name: "s", Count: 3})
	require.NoError(t, err)
	// The same logical value arriving as a decoded JSON object must hash
	// identically; this is what keeps hashes valid across persistence.
	h2, err := c.Hash(map[string]any{"count": 3, "name": "s"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestCodec_CreateAndValidate(t *testing.T) {
	c := NewCodec()

	snap, err := c.Create("xc-1", testEvents(2), map[string]any{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, snap.Hash)
	require.NoError(t, c.Validate(snap))

	// Round-trip through the wire format keeps the hash valid.
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, c.Validate(&decoded))
}

func TestCodec_ValidateDetectsTampering(t *testing.T) {
	c := NewCodec()

	snap, err := c.Create("xc-1", testEvents(1), map[string]any{"k": "v"})
	require.NoError(t, err)

	snap.State = map[string]any{"k": "tampered"}
	err = c.Validate(snap)
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, "CORRUPT_SNAPSHOT", corrupt.Code())
}

func TestCodec_DiffApplyRoundTrip(t *testing.T) {
	c := NewCodec()
	events := testEvents(3)

	a, err := c.Create("xc-1", events[:2], map[string]any{
		"keep":   "same",
		"change": "old",
		"drop":   true,
	})
	require.NoError(t, err)

	b, err := c.Create("xc-1", events, map[string]any{
		"keep":   "same",
		"change": "new",
		"added":  float64(7),
	})
	require.NoError(t, err)

	delta, err := c.Diff(a, b)
	require.NoError(t, err)
	require.True(t, delta.IsDelta)
	assert.Equal(t, a.Hash, delta.BaseHash)
	assert.Len(t, delta.EventsDelta, 1)
	assert.Equal(t, []string{"drop"}, delta.StateDelta.Removed)
	require.NoError(t, c.ValidateDelta(delta, a))

	applied, err := c.Apply(a, delta)
	require.NoError(t, err)
	assert.Equal(t, b.Hash, applied.Hash)
	assert.Len(t, applied.Events, 3)

	state, ok := applied.State.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new", state["change"])
	assert.Equal(t, float64(7), state["added"])
	assert.NotContains(t, state, "drop")
}

func TestCodec_DiffSmallStateStaysDelta(t *testing.T) {
	c := NewCodec()

	// Even when every key changed, the delta restates no more content than
	// the full copy would, so it must not degrade.
	a, err := c.Create("xc-1", nil, map[string]any{"n": float64(1)})
	require.NoError(t, err)
	b, err := c.Create("xc-1", nil, map[string]any{"n": float64(2)})
	require.NoError(t, err)

	delta, err := c.Diff(a, b)
	require.NoError(t, err)
	require.True(t, delta.IsDelta)
	require.NoError(t, c.ValidateDelta(delta, a))

	// The wire form carries no empty full-snapshot fields alongside the
	// delta fields.
	data, err := json.Marshal(delta)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"events"`)
	assert.NotContains(t, string(data), `"state"`)
}

func TestCodec_DiffDegradesToFull(t *testing.T) {
	c := NewCodec()

	b, err := c.Create("xc-1", testEvents(1), map[string]any{"k": "v"})
	require.NoError(t, err)

	// No base at all.
	full, err := c.Diff(nil, b)
	require.NoError(t, err)
	assert.False(t, full.IsDelta)
	assert.Equal(t, b.Hash, full.Hash)

	// Histories that diverge (not a prefix) cannot be expressed as a delta.
	divergent, err := c.Create("xc-1", []core.Event{{ID: "z", Type: "other"}}, map[string]any{"k": "v"})
	require.NoError(t, err)
	full, err = c.Diff(divergent, b)
	require.NoError(t, err)
	assert.False(t, full.IsDelta)
}

func TestCodec_ValidateDeltaRejectsWrongBase(t *testing.T) {
	c := NewCodec()
	events := testEvents(2)

	a, err := c.Create("xc-1", events[:1], map[string]any{"n": float64(1)})
	require.NoError(t, err)
	b, err := c.Create("xc-1", events, map[string]any{"n": float64(2)})
	require.NoError(t, err)
	other, err := c.Create("xc-2", nil, map[string]any{"unrelated": true})
	require.NoError(t, err)

	delta, err := c.Diff(a, b)
	require.NoError(t, err)
	require.True(t, delta.IsDelta)

	var corrupt *CorruptError
	require.ErrorAs(t, c.ValidateDelta(delta, other), &corrupt)
}

func TestCodec_ApplyFullSnapshotPassthrough(t *testing.T) {
	c := NewCodec()
	snap, err := c.Create("xc-1", testEvents(1), map[string]any{"k": "v"})
	require.NoError(t, err)

	out, err := c.Apply(nil, snap)
	require.NoError(t, err)
	assert.Equal(t, snap.Hash, out.Hash)
}
