package persist

import (
	"context"

	"github.com/kernelmesh/kernelmesh/snapshot"
)

// Persistor is an append-only store of snapshots keyed by execution-context
// id and queryable by content hash.
//
// Contract:
//   - Append never mutates previously stored snapshots. Appending a hash
//     that already exists is an idempotent no-op.
//   - Appending a delta whose base hash is unknown fails with ChainError;
//     a delta only becomes valid once its base exists.
//   - Load returns snapshots oldest → newest and tolerates partial
//     histories: whatever exists is surfaced, and chain resolution is the
//     caller's concern (see Reconstruct).
type Persistor interface {
	Append(ctx context.Context, snap *snapshot.Snapshot) error
	Load(ctx context.Context, executionContextID string) (Iterator, error)
	Has(ctx context.Context, hash string) (bool, error)
	GetByHash(ctx context.Context, hash string) (*snapshot.Snapshot, error)
	ListHashes(ctx context.Context, executionContextID string) ([]string, error)
	Stats(ctx context.Context) (Stats, error)
}

// Iterator walks a snapshot history lazily, oldest first. The usage pattern
// mirrors sql.Rows:
//
//	it, _ := p.Load(ctx, id)
//	defer it.Close()
//	for it.Next() {
//	    snap := it.Snapshot()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
//
// Iteration is finite and restartable: calling Load again yields a fresh
// pass over the history as it exists at that point.
type Iterator interface {
	Next() bool
	Snapshot() *snapshot.Snapshot
	Err() error
	Close() error
}

// Stats summarizes a persistor's contents. DeltaCompressionRatio is the
// mean delta size divided by the mean full-snapshot size; it is 0 when the
// store holds no deltas.
type Stats struct {
	SnapshotCount         int     `json:"snapshot_count"`
	TotalSizeBytes        int64   `json:"total_size_bytes"`
	AvgSnapshotSizeBytes  int64   `json:"avg_snapshot_size_bytes"`
	DeltaCompressionRatio float64 `json:"delta_compression_ratio,omitempty"`
}

// Reconstruct materializes the full snapshot behind hash, resolving a delta
// chain base-first through the persistor. Every hop is validated with the
// codec; a missing base yields ChainError, a digest mismatch CorruptError,
// and an unknown starting hash NotFoundError.
func Reconstruct(ctx context.Context, p Persistor, codec *snapshot.Codec, hash string) (*snapshot.Snapshot, error) {
	// Collect the chain tip-first.
	var chain []*snapshot.Snapshot
	cursor := hash
	for {
		snap, err := p.GetByHash(ctx, cursor)
		if err != nil {
			if _, notFound := err.(*NotFoundError); notFound && len(chain) > 0 {
				return nil, &ChainError{Hash: chain[len(chain)-1].Hash, MissingBase: cursor}
			}
			return nil, err
		}
		chain = append(chain, snap)
		if !snap.IsDelta {
			break
		}
		cursor = snap.BaseHash
	}

	// Replay base-first.
	full := chain[len(chain)-1]
	if err := codec.Validate(full); err != nil {
		return nil, err
	}
	for i := len(chain) - 2; i >= 0; i-- {
		next, err := codec.Apply(full, chain[i])
		if err != nil {
			return nil, err
		}
		full = next
	}
	return full, nil
}
