package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kernelmesh/kernelmesh/observability"
	"github.com/kernelmesh/kernelmesh/persist"
	"github.com/kernelmesh/kernelmesh/snapshot"
)

// Recovery is the result of a session recovery attempt. When WasRecovered
// is true the context was reconstructed, from a snapshot or from nothing,
// rather than found live, and callers should treat it as lower-trust than a
// live session: recovery confidence is intentionally not guaranteed.
type Recovery struct {
	Session      *Session
	WasRecovered bool
	GapDuration  time.Duration
	Inferences   []string
}

// RecoverSession re-establishes a session for a thread after a downtime
// gap. A live active session is returned as-is (WasRecovered false).
// Otherwise the most recent persisted snapshot for the thread, if any,
// is validated and replayed into a fresh session; with no snapshot a fresh
// empty session is started. GapDuration reports the elapsed idle time.
func (r *Registry) RecoverSession(ctx context.Context, threadID string) (*Recovery, error) {
	now := r.now()

	if sess, ok := r.FindSessionByThread(threadID, ""); ok {
		return &Recovery{
			Session:      sess,
			WasRecovered: false,
			GapDuration:  now.Sub(sess.LastActivity),
		}, nil
	}

	// Remember what we knew about the thread before it went away.
	var lastActivity time.Time
	var tenantID string
	r.mu.Lock()
	for _, sess := range r.sessions {
		if sess.ThreadID == threadID && sess.LastActivity.After(lastActivity) {
			lastActivity = sess.LastActivity
			tenantID = sess.TenantID
		}
	}
	r.mu.Unlock()

	rec := &Recovery{WasRecovered: true}

	snap, err := r.latestSnapshot(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if snap == nil {
		if lastActivity.IsZero() {
			rec.Inferences = append(rec.Inferences, "no prior session found for thread")
		} else {
			rec.GapDuration = now.Sub(lastActivity)
			rec.Inferences = append(rec.Inferences, "previous session expired; no snapshot available")
		}
		rec.Inferences = append(rec.Inferences, "starting with empty context")
		rec.Session = r.CreateSession(tenantID, threadID, nil)
		return rec, nil
	}

	var payload SnapshotState
	if err := decodeState(snap.State, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot state: %w", err)
	}

	rec.Session = r.Restore(payload, snap.Events)
	snapTime := time.UnixMilli(snap.Timestamp)
	if lastActivity.After(snapTime) {
		rec.GapDuration = now.Sub(lastActivity)
	} else {
		rec.GapDuration = now.Sub(snapTime)
	}
	rec.Inferences = append(rec.Inferences, fmt.Sprintf("context restored from snapshot %s", snap.Hash))
	if r.cfg.SessionTimeout > 0 && rec.GapDuration > r.cfg.SessionTimeout {
		rec.Inferences = append(rec.Inferences, "gap exceeds session timeout; restored context may be stale")
	}

	r.logger.Info("Session recovered", "thread_id", threadID, "snapshot_hash", snap.Hash, "gap", rec.GapDuration)
	r.sink.Emit(ctx, observability.NewEvent(observability.EventSessionRecovered, "registry", map[string]any{
		"session_id":    rec.Session.ID,
		"tenant_id":     rec.Session.TenantID,
		"thread_id":     threadID,
		"snapshot_hash": snap.Hash,
		"gap_ms":        rec.GapDuration.Milliseconds(),
	}))
	return rec, nil
}

// latestSnapshot materializes the newest snapshot stored for a thread, or
// nil when the persistor is absent or holds none. Delta tips are resolved
// through their chain; corruption and broken chains propagate as errors.
func (r *Registry) latestSnapshot(ctx context.Context, threadID string) (*snapshot.Snapshot, error) {
	if r.persistor == nil || r.codec == nil {
		return nil, nil
	}

	hashes, err := r.persistor.ListHashes(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	return persist.Reconstruct(ctx, r.persistor, r.codec, hashes[len(hashes)-1])
}

// decodeState converts the canonical (JSON object) snapshot state back into
// the typed payload.
func decodeState(state any, out *SnapshotState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
