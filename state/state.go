package state

import (
	"sort"
	"sync"
)

// Store is a bounded two-level key/value store partitioned into namespaces.
// It is scoped to exactly one owning context (session or execution) and is
// safe for concurrent access.
//
// Contract:
//   - Set on a new namespace fails with LimitError when the namespace count
//     is already at the maximum; the namespace is never created transiently.
//   - Set on a new key fails with LimitError when the namespace already holds
//     the maximum key count; overwriting an existing key always succeeds.
//   - Operations issued by a single caller against the same namespace are
//     observed in issue order. No ordering holds across racing callers;
//     callers needing exclusivity serialize through the kernel's atomic
//     operation facility.
type Store struct {
	mu               sync.RWMutex
	namespaces       map[string]map[string]any
	maxNamespaces    int
	maxNamespaceSize int
}

// NewStore creates an empty store with the given caps. A cap of 0 means
// unlimited for that dimension.
func NewStore(maxNamespaces, maxNamespaceSize int) *Store {
	return &Store{
		namespaces:       make(map[string]map[string]any),
		maxNamespaces:    maxNamespaces,
		maxNamespaceSize: maxNamespaceSize,
	}
}

// Get returns the value stored under (namespace, key) and whether it exists.
func (s *Store) Get(namespace, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil, false
	}
	v, ok := ns[key]
	return v, ok
}

// Set stores value under (namespace, key). Limits are checked strictly
// before any mutation: a rejected Set leaves the store exactly as it was.
func (s *Store) Set(namespace, key string, value any) error {
	if namespace == "" {
		return &ValidationError{Field: "namespace", Reason: "must not be empty"}
	}
	if key == "" {
		return &ValidationError{Field: "key", Reason: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, exists := s.namespaces[namespace]
	if !exists {
		if s.maxNamespaces > 0 && len(s.namespaces) >= s.maxNamespaces {
			return &LimitError{Kind: LimitNamespaces, Namespace: namespace, Limit: s.maxNamespaces}
		}
		ns = make(map[string]any)
		s.namespaces[namespace] = ns
	}

	if _, keyExists := ns[key]; !keyExists {
		if s.maxNamespaceSize > 0 && len(ns) >= s.maxNamespaceSize {
			return &LimitError{Kind: LimitKeys, Namespace: namespace, Limit: s.maxNamespaceSize}
		}
	}

	ns[key] = value
	return nil
}

// Delete removes (namespace, key) and reports whether it existed. An empty
// namespace left behind by the last delete is removed too.
func (s *Store) Delete(namespace, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return false
	}
	if _, ok := ns[key]; !ok {
		return false
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(s.namespaces, namespace)
	}
	return true
}

// Has reports whether (namespace, key) exists.
func (s *Store) Has(namespace, key string) bool {
	_, ok := s.Get(namespace, key)
	return ok
}

// Keys returns the sorted key set of a namespace. Missing namespaces yield an
// empty slice.
func (s *Store) Keys(namespace string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return []string{}
	}
	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Namespaces returns the sorted set of existing namespace names.
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the number of keys held by a namespace (0 when absent).
func (s *Store) Size(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

// TotalSize returns the number of keys held across all namespaces.
func (s *Store) TotalSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, ns := range s.namespaces {
		total += len(ns)
	}
	return total
}

// NamespaceCount returns the number of existing namespaces.
func (s *Store) NamespaceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces)
}

// Clear removes all keys from one namespace. It is a no-op when the
// namespace does not exist.
func (s *Store) Clear(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
}

// Reset removes every namespace and key.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces = make(map[string]map[string]any)
}

// Export returns a deep copy of the full namespace → key → value mapping,
// suitable for embedding in a snapshot.
func (s *Store) Export() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(s.namespaces))
	for name, ns := range s.namespaces {
		cp := make(map[string]any, len(ns))
		for k, v := range ns {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}

// Import replaces the store contents with the given mapping. Used on resume
// to reconstruct state from a validated snapshot; the snapshot was produced
// under the same caps, so no limit checks are re-applied here.
func (s *Store) Import(data map[string]map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces = make(map[string]map[string]any, len(data))
	for name, ns := range data {
		cp := make(map[string]any, len(ns))
		for k, v := range ns {
			cp[k] = v
		}
		s.namespaces[name] = cp
	}
}
