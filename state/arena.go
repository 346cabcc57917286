package state

import (
	"sync"

	"github.com/google/uuid"
)

// Handle identifies a Store allocated from an Arena. Handles are opaque;
// holding one does not keep the underlying store alive; only the Arena does,
// until Release is called.
type Handle string

// Arena owns the lifetime of per-context Stores. It replaces identity-keyed
// lifetime tracking with explicit allocation and release: the session
// registry (or kernel) calls Release at the exact points a session or
// execution context is destroyed: close, expiry sweep, LRU eviction,
// context teardown.
//
// Release is idempotent; releasing an unknown or already-released handle is
// a no-op reported via the boolean return.
type Arena struct {
	mu               sync.RWMutex
	stores           map[Handle]*Store
	maxNamespaces    int
	maxNamespaceSize int
}

// NewArena creates an arena whose allocated stores share the given caps.
func NewArena(maxNamespaces, maxNamespaceSize int) *Arena {
	return &Arena{
		stores:           make(map[Handle]*Store),
		maxNamespaces:    maxNamespaces,
		maxNamespaceSize: maxNamespaceSize,
	}
}

// Allocate creates a fresh Store and returns its handle.
func (a *Arena) Allocate() (Handle, *Store) {
	h := Handle(uuid.NewString())
	st := NewStore(a.maxNamespaces, a.maxNamespaceSize)
	a.mu.Lock()
	a.stores[h] = st
	a.mu.Unlock()
	return h, st
}

// Get returns the store for a handle, or false when it has been released.
func (a *Arena) Get(h Handle) (*Store, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.stores[h]
	return st, ok
}

// Release reclaims the store behind a handle. Returns false when the handle
// was unknown or already released.
func (a *Arena) Release(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.stores[h]; !ok {
		return false
	}
	delete(a.stores, h)
	return true
}

// Len returns the number of live stores.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.stores)
}
