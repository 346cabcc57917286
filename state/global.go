package state

import "sync"

// GlobalStore is a flat namespace → key → value map shared by every caller
// in the process. It carries no per-namespace creation limit and no context
// scoping, which makes it the single sanctioned shared-mutable resource in
// the runtime.
//
// Intended strictly for cross-tenant shared configuration (feature flags,
// static lookup tables). Tenant- or session-scoped data belongs in a Store
// obtained from an Arena. Construct one instance at the composition root and
// inject it; there is no package-level default.
type GlobalStore struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

// NewGlobalStore creates an empty process-wide shared store.
func NewGlobalStore() *GlobalStore {
	return &GlobalStore{data: make(map[string]map[string]any)}
}

// Get returns the value stored under (namespace, key) and whether it exists.
func (g *GlobalStore) Get(namespace, key string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ns, ok := g.data[namespace]
	if !ok {
		return nil, false
	}
	v, ok := ns[key]
	return v, ok
}

// Set stores value under (namespace, key), creating the namespace on demand.
func (g *GlobalStore) Set(namespace, key string, value any) error {
	if namespace == "" {
		return &ValidationError{Field: "namespace", Reason: "must not be empty"}
	}
	if key == "" {
		return &ValidationError{Field: "key", Reason: "must not be empty"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ns, ok := g.data[namespace]
	if !ok {
		ns = make(map[string]any)
		g.data[namespace] = ns
	}
	ns[key] = value
	return nil
}

// Delete removes (namespace, key) and reports whether it existed.
func (g *GlobalStore) Delete(namespace, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ns, ok := g.data[namespace]
	if !ok {
		return false
	}
	if _, ok := ns[key]; !ok {
		return false
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(g.data, namespace)
	}
	return true
}

// Clear removes all keys from one namespace.
func (g *GlobalStore) Clear(namespace string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.data, namespace)
}
