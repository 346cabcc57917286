package persist

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kernelmesh/kernelmesh/snapshot"
)

// InMemoryPersistor is a volatile Persistor holding snapshots in a bounded
// process-local ring. When the bound is exceeded the oldest snapshot is
// compacted away; this internal retention is invisible to callers beyond
// Stats, though resolving a chain whose base was compacted surfaces a
// ChainError. Safe for concurrent access. Best suited for tests, demos and
// single-process deployments that accept non-durable checkpoints.
type InMemoryPersistor struct {
	mu           sync.RWMutex
	maxSnapshots int
	order        []string                      // hashes in append order, oldest first
	byHash       map[string]*snapshot.Snapshot // hash -> snapshot
	sizes        map[string]int64              // hash -> encoded size
	byContext    map[string][]string           // xcID -> ordered hashes
}

// NewInMemoryPersistor constructs an empty in-memory persistor retaining at
// most maxSnapshots entries (0 = unbounded).
func NewInMemoryPersistor(maxSnapshots int) *InMemoryPersistor {
	return &InMemoryPersistor{
		maxSnapshots: maxSnapshots,
		byHash:       make(map[string]*snapshot.Snapshot),
		sizes:        make(map[string]int64),
		byContext:    make(map[string][]string),
	}
}

// Append stores a snapshot. Re-appending an existing hash is a no-op; a
// delta referencing an unknown base fails with ChainError.
func (p *InMemoryPersistor) Append(ctx context.Context, snap *snapshot.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byHash[snap.Hash]; exists {
		return nil
	}
	if snap.IsDelta {
		if _, baseExists := p.byHash[snap.BaseHash]; !baseExists {
			return &ChainError{Hash: snap.Hash, MissingBase: snap.BaseHash}
		}
	}

	p.byHash[snap.Hash] = snap.Clone()
	p.sizes[snap.Hash] = int64(len(encoded))
	p.order = append(p.order, snap.Hash)
	p.byContext[snap.ExecutionContextID] = append(p.byContext[snap.ExecutionContextID], snap.Hash)

	for p.maxSnapshots > 0 && len(p.order) > p.maxSnapshots {
		p.evictOldestLocked()
	}
	return nil
}

// evictOldestLocked drops the oldest snapshot; caller holds the write lock.
func (p *InMemoryPersistor) evictOldestLocked() {
	oldest := p.order[0]
	p.order = p.order[1:]

	snap := p.byHash[oldest]
	delete(p.byHash, oldest)
	delete(p.sizes, oldest)

	hashes := p.byContext[snap.ExecutionContextID]
	for i, h := range hashes {
		if h == oldest {
			p.byContext[snap.ExecutionContextID] = append(hashes[:i], hashes[i+1:]...)
			break
		}
	}
	if len(p.byContext[snap.ExecutionContextID]) == 0 {
		delete(p.byContext, snap.ExecutionContextID)
	}
}

// Load returns an iterator over the history of one execution context,
// oldest first. The iterator walks an immutable copy taken now; call Load
// again to observe later appends.
func (p *InMemoryPersistor) Load(ctx context.Context, executionContextID string) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	hashes := p.byContext[executionContextID]
	snaps := make([]*snapshot.Snapshot, 0, len(hashes))
	for _, h := range hashes {
		snaps = append(snaps, p.byHash[h].Clone())
	}
	p.mu.RUnlock()

	return &sliceIterator{snaps: snaps, pos: -1}, nil
}

// Has reports whether a snapshot with the given hash is stored.
func (p *InMemoryPersistor) Has(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byHash[hash]
	return ok, nil
}

// GetByHash returns the snapshot with the given hash or NotFoundError.
func (p *InMemoryPersistor) GetByHash(ctx context.Context, hash string) (*snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.byHash[hash]
	if !ok {
		return nil, &NotFoundError{Hash: hash}
	}
	return snap.Clone(), nil
}

// ListHashes returns the ordered hashes stored for an execution context.
func (p *InMemoryPersistor) ListHashes(ctx context.Context, executionContextID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.byContext[executionContextID]...), nil
}

// Stats summarizes the current contents.
func (p *InMemoryPersistor) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var st Stats
	var deltaBytes, fullBytes int64
	var deltaCount, fullCount int
	for hash, snap := range p.byHash {
		size := p.sizes[hash]
		st.SnapshotCount++
		st.TotalSizeBytes += size
		if snap.IsDelta {
			deltaBytes += size
			deltaCount++
		} else {
			fullBytes += size
			fullCount++
		}
	}
	if st.SnapshotCount > 0 {
		st.AvgSnapshotSizeBytes = st.TotalSizeBytes / int64(st.SnapshotCount)
	}
	if deltaCount > 0 && fullCount > 0 && fullBytes > 0 {
		avgDelta := float64(deltaBytes) / float64(deltaCount)
		avgFull := float64(fullBytes) / float64(fullCount)
		st.DeltaCompressionRatio = avgDelta / avgFull
	}
	return st, nil
}

// sliceIterator walks a fixed slice of snapshots.
type sliceIterator struct {
	snaps []*snapshot.Snapshot
	pos   int
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.snaps) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Snapshot() *snapshot.Snapshot {
	if it.pos < 0 || it.pos >= len(it.snaps) {
		return nil
	}
	return it.snaps[it.pos]
}

func (it *sliceIterator) Err() error { return nil }

func (it *sliceIterator) Close() error { return nil }
