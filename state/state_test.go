package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_NamespaceSizeLimit(t *testing.T) {
	s := NewStore(0, 2)

	require.NoError(t, s.Set("ns", "a", 1))
	require.NoError(t, s.Set("ns", "b", 2))

	err := s.Set("ns", "c", 3)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, LimitKeys, limitErr.Kind)
	assert.Equal(t, "LIMIT_EXCEEDED", limitErr.Code())

	// Overwriting an existing key is always allowed at the cap.
	require.NoError(t, s.Set("ns", "a", 99))
	v, ok := s.Get("ns", "a")
	require.True(t, ok)
	assert.Equal(t, 99, v)
}

func TestStore_NamespaceCountLimit(t *testing.T) {
	s := NewStore(2, 0)

	require.NoError(t, s.Set("ns1", "k", 1))
	require.NoError(t, s.Set("ns2", "k", 1))

	err := s.Set("ns3", "k", 1)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, LimitNamespaces, limitErr.Kind)

	// The rejected namespace must not exist, even transiently.
	assert.Equal(t, 2, s.NamespaceCount())
	assert.False(t, s.Has("ns3", "k"))

	// Existing namespaces remain writable.
	require.NoError(t, s.Set("ns1", "k2", 2))
}

func TestStore_ValidationBeforeMutation(t *testing.T) {
	s := NewStore(1, 1)

	var valErr *ValidationError
	require.ErrorAs(t, s.Set("", "k", 1), &valErr)
	require.ErrorAs(t, s.Set("ns", "", 1), &valErr)
	assert.Equal(t, "VALIDATION_ERROR", valErr.Code())
	assert.Equal(t, 0, s.NamespaceCount())
}

func TestStore_DeleteRemovesEmptyNamespace(t *testing.T) {
	s := NewStore(0, 0)
	require.NoError(t, s.Set("ns", "k", "v"))

	assert.True(t, s.Delete("ns", "k"))
	assert.False(t, s.Delete("ns", "k"))
	assert.Equal(t, 0, s.NamespaceCount())
}

func TestStore_KeysAndSizes(t *testing.T) {
	s := NewStore(0, 0)
	require.NoError(t, s.Set("a", "z", 1))
	require.NoError(t, s.Set("a", "y", 2))
	require.NoError(t, s.Set("b", "x", 3))

	assert.Equal(t, []string{"y", "z"}, s.Keys("a"))
	assert.Equal(t, []string{"a", "b"}, s.Namespaces())
	assert.Equal(t, 2, s.Size("a"))
	assert.Equal(t, 0, s.Size("missing"))
	assert.Equal(t, 3, s.TotalSize())
	assert.Empty(t, s.Keys("missing"))
}

func TestStore_ClearAndReset(t *testing.T) {
	s := NewStore(0, 0)
	require.NoError(t, s.Set("a", "k", 1))
	require.NoError(t, s.Set("b", "k", 1))

	s.Clear("a")
	assert.False(t, s.Has("a", "k"))
	assert.True(t, s.Has("b", "k"))

	s.Reset()
	assert.Equal(t, 0, s.NamespaceCount())
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	s := NewStore(4, 4)
	require.NoError(t, s.Set("ns", "k", "v"))
	require.NoError(t, s.Set("ns", "n", 42))

	exported := s.Export()
	// Mutating the export must not leak back into the store.
	exported["ns"]["k"] = "tampered"
	v, _ := s.Get("ns", "k")
	assert.Equal(t, "v", v)

	restored := NewStore(4, 4)
	restored.Import(s.Export())
	v, ok := restored.Get("ns", "n")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestGlobalStore_NoNamespaceLimit(t *testing.T) {
	g := NewGlobalStore()
	for _, ns := range []string{"flags", "catalog", "routing", "pricing"} {
		if err := g.Set(ns, "enabled", true); err != nil {
			t.Fatalf("unexpected error creating namespace %s: %v", ns, err)
		}
	}
	v, ok := g.Get("flags", "enabled")
	if !ok || v != true {
		t.Fatalf("expected flags/enabled=true, got %v %v", v, ok)
	}
	if !g.Delete("flags", "enabled") {
		t.Error("expected delete to report existing key")
	}

	var valErr *ValidationError
	if !errors.As(g.Set("", "k", 1), &valErr) {
		t.Error("expected validation error for empty namespace")
	}
}
