// Package sqlite provides a durable, file-backed Persistor on SQLite.
// It satisfies the same append-only contract as the in-memory store while
// surviving process restarts, making it the default choice for deployments
// that rely on pause/resume across downtime gaps.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kernelmesh/kernelmesh/persist"
	"github.com/kernelmesh/kernelmesh/snapshot"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	xc_id     TEXT    NOT NULL,
	hash      TEXT    NOT NULL UNIQUE,
	is_delta  INTEGER NOT NULL DEFAULT 0,
	base_hash TEXT,
	ts        INTEGER NOT NULL,
	payload   BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_xc ON snapshots(xc_id, seq);
`

// Store is a SQLite-backed Persistor. Safe for concurrent use; SQLite
// serializes writers internally and WAL mode keeps readers unblocked.
type Store struct {
	db *sql.DB
}

var _ persist.Persistor = (*Store)(nil)

// Open opens (or creates) a snapshot store at the given path and applies the
// schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append stores a snapshot. Re-appending an existing hash is a no-op; a
// delta referencing an unknown base fails with ChainError.
func (s *Store) Append(ctx context.Context, snap *snapshot.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if snap.IsDelta {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM snapshots WHERE hash = ?`, snap.BaseHash).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return &persist.ChainError{Hash: snap.Hash, MissingBase: snap.BaseHash}
		}
	}

	var baseHash sql.NullString
	if snap.BaseHash != "" {
		baseHash = sql.NullString{String: snap.BaseHash, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO snapshots (xc_id, hash, is_delta, base_hash, ts, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ExecutionContextID, snap.Hash, boolToInt(snap.IsDelta), baseHash, snap.Timestamp, payload)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Load returns a lazy iterator over one execution context's history in
// append order (oldest first).
func (s *Store) Load(ctx context.Context, executionContextID string) (persist.Iterator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM snapshots WHERE xc_id = ? ORDER BY seq ASC`, executionContextID)
	if err != nil {
		return nil, err
	}
	return &rowIterator{rows: rows}, nil
}

// Has reports whether a snapshot with the given hash is stored.
func (s *Store) Has(ctx context.Context, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM snapshots WHERE hash = ?`, hash).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByHash returns the snapshot with the given hash or NotFoundError.
func (s *Store) GetByHash(ctx context.Context, hash string) (*snapshot.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE hash = ?`, hash).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &persist.NotFoundError{Hash: hash}
	}
	if err != nil {
		return nil, err
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", hash, err)
	}
	return &snap, nil
}

// ListHashes returns the ordered hashes stored for an execution context.
func (s *Store) ListHashes(ctx context.Context, executionContextID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM snapshots WHERE xc_id = ? ORDER BY seq ASC`, executionContextID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// Stats summarizes the stored snapshots.
func (s *Store) Stats(ctx context.Context) (persist.Stats, error) {
	var st persist.Stats
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(LENGTH(payload)), 0) FROM snapshots`).Scan(&st.SnapshotCount, &total)
	if err != nil {
		return persist.Stats{}, err
	}
	st.TotalSizeBytes = total.Int64
	if st.SnapshotCount > 0 {
		st.AvgSnapshotSizeBytes = st.TotalSizeBytes / int64(st.SnapshotCount)
	}

	var avgDelta, avgFull sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT AVG(LENGTH(payload)) FROM snapshots WHERE is_delta = 1),
			(SELECT AVG(LENGTH(payload)) FROM snapshots WHERE is_delta = 0)`).Scan(&avgDelta, &avgFull)
	if err != nil {
		return persist.Stats{}, err
	}
	if avgDelta.Valid && avgFull.Valid && avgFull.Float64 > 0 {
		st.DeltaCompressionRatio = avgDelta.Float64 / avgFull.Float64
	}
	return st, nil
}

// rowIterator adapts sql.Rows to persist.Iterator, decoding lazily.
type rowIterator struct {
	rows    *sql.Rows
	current *snapshot.Snapshot
	err     error
}

func (it *rowIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}
	var payload []byte
	if err := it.rows.Scan(&payload); err != nil {
		it.err = err
		return false
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		it.err = err
		return false
	}
	it.current = &snap
	return true
}

func (it *rowIterator) Snapshot() *snapshot.Snapshot { return it.current }

func (it *rowIterator) Err() error { return it.err }

func (it *rowIterator) Close() error { return it.rows.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
