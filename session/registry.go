package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kernelmesh/kernelmesh/core"
	"github.com/kernelmesh/kernelmesh/logging"
	"github.com/kernelmesh/kernelmesh/observability"
	"github.com/kernelmesh/kernelmesh/persist"
	"github.com/kernelmesh/kernelmesh/snapshot"
	"github.com/kernelmesh/kernelmesh/state"
)

// Config defines the registry's lifecycle tuning parameters.
type Config struct {
	// MaxSessions bounds the number of tracked sessions; exceeding it
	// evicts the least-recently-active session. 0 means unbounded.
	MaxSessions int
	// SessionTimeout is the idle duration after which an active session
	// expires.
	SessionTimeout time.Duration
	// MaxConversationHistory bounds entries per session; oldest dropped
	// first. 0 means unbounded.
	MaxConversationHistory int
	// SweepInterval is the period of the background expiry sweep.
	SweepInterval time.Duration
	// MaxNamespaces / MaxNamespaceSize cap each session's state store.
	MaxNamespaces    int
	MaxNamespaceSize int
}

// DefaultConfig returns conservative defaults suitable for development.
func DefaultConfig() Config {
	return Config{
		MaxSessions:            1000,
		SessionTimeout:         30 * time.Minute,
		MaxConversationHistory: 50,
		SweepInterval:          time.Minute,
		MaxNamespaces:          16,
		MaxNamespaceSize:       256,
	}
}

// Stats summarizes registry activity.
type Stats struct {
	Active   int
	Paused   int
	Expired  int
	Closed   int
	Evicted  int64 // LRU evictions since construction
	Swept    int64 // expiries performed by sweeps or on-access checks
	LiveKeys int   // live state stores in the arena
}

// Options configures a Registry beyond its Config.
type Options struct {
	// Logger receives structured log output. Defaults to NoOpLogger.
	Logger logging.Logger
	// Sink receives lifecycle events. Defaults to NoOpSink.
	Sink observability.Sink
	// Persistor and Codec enable snapshot-based recovery. Both optional;
	// without them RecoverSession can only start fresh.
	Persistor persist.Persistor
	Codec     *snapshot.Codec
	// Clock injects a time source; used by tests.
	Clock func() time.Time
}

// Registry tracks session lifecycle, conversation history and per-session
// state. It is safe for concurrent access; all internal maps are mutated
// only under the registry lock and lookups return clones.
type Registry struct {
	cfg       Config
	logger    logging.Logger
	sink      observability.Sink
	persistor persist.Persistor
	codec     *snapshot.Codec
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	arena    *state.Arena
	evicted  int64
	swept    int64

	sweepStop chan struct{}
	sweepOnce sync.Once
	closeOnce sync.Once
}

// NewRegistry constructs a registry. The background sweep does not start
// until Start is called.
func NewRegistry(cfg Config, optFns ...func(*Options)) *Registry {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Sink:   observability.NoOpSink{},
		Clock:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		cfg:       cfg,
		logger:    opts.Logger,
		sink:      opts.Sink,
		persistor: opts.Persistor,
		codec:     opts.Codec,
		now:       opts.Clock,
		sessions:  make(map[string]*Session),
		arena:     state.NewArena(cfg.MaxNamespaces, cfg.MaxNamespaceSize),
		sweepStop: make(chan struct{}),
	}
}

// CreateSession allocates a new active session with a fresh state store.
// When the max-session bound is exceeded, the least-recently-active session
// is evicted first, state included.
func (r *Registry) CreateSession(tenantID, threadID string, metadata map[string]string) *Session {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.evictLRULocked()
	}

	handle, _ := r.arena.Allocate()
	sess := &Session{
		ID:           core.NewID(),
		ThreadID:     threadID,
		TenantID:     tenantID,
		CreatedAt:    now,
		LastActivity: now,
		Status:       StatusActive,
		Metadata:     make(map[string]string, len(metadata)),
		ContextData:  make(map[string]any),
		StateHandle:  handle,
	}
	for k, v := range metadata {
		sess.Metadata[k] = v
	}
	r.sessions[sess.ID] = sess

	r.logger.Info("Session created", "session_id", sess.ID, "tenant_id", tenantID, "thread_id", threadID)
	r.sink.Emit(context.Background(), observability.NewEvent(observability.EventSessionCreated, "registry", map[string]any{
		"session_id": sess.ID,
		"tenant_id":  tenantID,
		"thread_id":  threadID,
	}))
	return sess.Clone()
}

// GetSession returns a clone of the session. As a side effect, a session
// idle past the timeout is expired, and its state released, before
// returning, so callers never observe a stale active session.
func (r *Registry) GetSession(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	r.expireIfStaleLocked(sess)
	return sess.Clone(), true
}

// FindSessionByThread returns the first active, non-expired session for a
// thread. An empty tenantID matches any tenant. Used for session continuity
// across disconnected calls.
func (r *Registry) FindSessionByThread(threadID, tenantID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		if sess.ThreadID != threadID {
			continue
		}
		if tenantID != "" && sess.TenantID != tenantID {
			continue
		}
		r.expireIfStaleLocked(sess)
		if sess.Status == StatusActive {
			return sess.Clone(), true
		}
	}
	return nil, false
}

// AddConversationEntry appends an exchange to the session's history,
// dropping the oldest entries beyond the configured bound. Returns false,
// without error, when the session is gone or terminal; the caller should
// treat that as "conversation not recorded, start fresh".
func (r *Registry) AddConversationEntry(id, input, output, agentName string, metadata map[string]any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return false
	}
	r.expireIfStaleLocked(sess)
	if sess.Status.Terminal() {
		return false
	}

	sess.ConversationHistory = append(sess.ConversationHistory, ConversationEntry{
		Timestamp: r.now(),
		Input:     input,
		Output:    output,
		AgentName: agentName,
		Metadata:  metadata,
	})
	if max := r.cfg.MaxConversationHistory; max > 0 && len(sess.ConversationHistory) > max {
		overflow := len(sess.ConversationHistory) - max
		sess.ConversationHistory = append([]ConversationEntry(nil), sess.ConversationHistory[overflow:]...)
	}
	sess.LastActivity = r.now()
	return true
}

// AppendEvent records an execution event on the session history.
func (r *Registry) AppendEvent(id string, ev core.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.Status.Terminal() {
		return false
	}
	sess.Events = append(sess.Events, ev)
	sess.LastActivity = r.now()
	return true
}

// Touch updates the session's last activity timestamp. Failed operations
// count as activity too, so the kernel calls this on both outcomes.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.Status.Terminal() {
		return false
	}
	sess.LastActivity = r.now()
	return true
}

// MergeContextData merges key/value pairs into the session's context data.
func (r *Registry) MergeContextData(id string, delta map[string]any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.Status.Terminal() {
		return false
	}
	for k, v := range delta {
		sess.ContextData[k] = v
	}
	sess.LastActivity = r.now()
	return true
}

// StateFor returns the live state store backing a session. The store itself
// is safe for concurrent access; its lifetime remains owned by the registry.
func (r *Registry) StateFor(id string) (*state.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.StateHandle == "" {
		return nil, false
	}
	return r.arena.Get(sess.StateHandle)
}

// MarkPaused transitions an active session to paused.
func (r *Registry) MarkPaused(id string) bool {
	return r.transition(id, StatusActive, StatusPaused)
}

// MarkActive transitions a paused session back to active.
func (r *Registry) MarkActive(id string) bool {
	return r.transition(id, StatusPaused, StatusActive)
}

func (r *Registry) transition(id string, from, to Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.Status != from {
		return false
	}
	sess.Status = to
	sess.LastActivity = r.now()
	return true
}

// CloseSession ends a session explicitly and releases its state. Closing an
// already-terminal or unknown session is a no-op returning false.
func (r *Registry) CloseSession(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.Status.Terminal() {
		return false
	}
	sess.Status = StatusClosed
	r.releaseStateLocked(sess)
	delete(r.sessions, id)

	r.logger.Info("Session closed", "session_id", id)
	r.sink.Emit(context.Background(), observability.NewEvent(observability.EventSessionClosed, "registry", map[string]any{
		"session_id": id,
		"tenant_id":  sess.TenantID,
	}))
	return true
}

// ExportState builds the snapshot payload for a session: identity,
// conversation, context data and exported namespaced state.
func (r *Registry) ExportState(id string) (SnapshotState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return SnapshotState{}, false
	}

	cp := sess.Clone()
	payload := SnapshotState{
		SessionID:           cp.ID,
		ThreadID:            cp.ThreadID,
		TenantID:            cp.TenantID,
		Metadata:            cp.Metadata,
		ContextData:         cp.ContextData,
		ConversationHistory: cp.ConversationHistory,
	}
	if st, live := r.arena.Get(sess.StateHandle); live {
		payload.Namespaces = st.Export()
	}
	return payload, true
}

// EventsFor returns a copy of the session's event history.
func (r *Registry) EventsFor(id string) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil
	}
	return append([]core.Event(nil), sess.Events...)
}

// Restore installs a session reconstructed from a snapshot payload. An
// existing session for the same thread is replaced. The restored session is
// active with fresh activity.
func (r *Registry) Restore(payload SnapshotState, events []core.Event) *Session {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Replace any lingering session for the thread.
	for id, existing := range r.sessions {
		if existing.ThreadID == payload.ThreadID {
			r.releaseStateLocked(existing)
			delete(r.sessions, id)
		}
	}

	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.evictLRULocked()
	}

	handle, st := r.arena.Allocate()
	st.Import(payload.Namespaces)

	// Snapshots written under a laxer configuration can carry more history
	// than this registry allows; the bound holds on restore too, keeping the
	// most recent entries.
	history := payload.ConversationHistory
	if max := r.cfg.MaxConversationHistory; max > 0 && len(history) > max {
		history = append([]ConversationEntry(nil), history[len(history)-max:]...)
	}

	sessID := payload.SessionID
	if sessID == "" {
		sessID = core.NewID()
	}
	sess := &Session{
		ID:                  sessID,
		ThreadID:            payload.ThreadID,
		TenantID:            payload.TenantID,
		CreatedAt:           now,
		LastActivity:        now,
		Status:              StatusActive,
		Metadata:            payload.Metadata,
		ContextData:         payload.ContextData,
		ConversationHistory: history,
		Events:              append([]core.Event(nil), events...),
		StateHandle:         handle,
	}
	if sess.Metadata == nil {
		sess.Metadata = make(map[string]string)
	}
	if sess.ContextData == nil {
		sess.ContextData = make(map[string]any)
	}
	r.sessions[sess.ID] = sess
	return sess.Clone()
}

// Sweep expires every timed-out session in one pass and returns how many
// were transitioned. This is the only eviction path besides on-access
// checks and the max-session bound; expiring an already-expired session is
// a no-op.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, sess := range r.sessions {
		if sess.Status == StatusActive && r.stale(sess) {
			r.expireLocked(sess)
			n++
		}
	}
	return n
}

// Start launches the background sweep at the configured interval. Safe to
// call once; subsequent calls are no-ops.
func (r *Registry) Start() {
	r.sweepOnce.Do(func() {
		interval := r.cfg.SweepInterval
		if interval <= 0 {
			interval = time.Minute
		}
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := r.Sweep(); n > 0 {
						r.logger.Debug("Expiry sweep completed", "expired", n)
					}
				case <-r.sweepStop:
					return
				}
			}
		}()
	})
}

// Close stops the sweeper and releases every session's state.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.sweepStop) })

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sess := range r.sessions {
		r.releaseStateLocked(sess)
		delete(r.sessions, id)
	}
}

// Stats returns a point-in-time summary of registry contents.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{Evicted: r.evicted, Swept: r.swept, LiveKeys: r.arena.Len()}
	for _, sess := range r.sessions {
		switch sess.Status {
		case StatusActive:
			st.Active++
		case StatusPaused:
			st.Paused++
		case StatusExpired:
			st.Expired++
		case StatusClosed:
			st.Closed++
		}
	}
	return st
}

// stale reports whether the session idled past the timeout; caller holds
// the lock.
func (r *Registry) stale(sess *Session) bool {
	if r.cfg.SessionTimeout <= 0 {
		return false
	}
	return r.now().Sub(sess.LastActivity) > r.cfg.SessionTimeout
}

// expireIfStaleLocked applies the on-access expiry check.
func (r *Registry) expireIfStaleLocked(sess *Session) {
	if sess.Status == StatusActive && r.stale(sess) {
		r.expireLocked(sess)
	}
}

// expireLocked transitions a session to expired and releases its state;
// caller holds the lock. Idempotent: expiring twice is a no-op.
func (r *Registry) expireLocked(sess *Session) {
	if sess.Status.Terminal() {
		return
	}
	sess.Status = StatusExpired
	r.releaseStateLocked(sess)
	r.swept++

	r.logger.Info("Session expired", "session_id", sess.ID, "tenant_id", sess.TenantID)
	r.sink.Emit(context.Background(), observability.NewEvent(observability.EventSessionExpired, "registry", map[string]any{
		"session_id": sess.ID,
		"tenant_id":  sess.TenantID,
	}))
}

// evictLRULocked removes the least-recently-active session to make room;
// caller holds the lock.
func (r *Registry) evictLRULocked() {
	var victim *Session
	for _, sess := range r.sessions {
		if victim == nil || sess.LastActivity.Before(victim.LastActivity) {
			victim = sess
		}
	}
	if victim == nil {
		return
	}
	r.releaseStateLocked(victim)
	delete(r.sessions, victim.ID)
	r.evicted++

	r.logger.Warn("Session evicted (max sessions)", "session_id", victim.ID, "tenant_id", victim.TenantID)
	r.sink.Emit(context.Background(), observability.NewEvent(observability.EventSessionEvicted, "registry", map[string]any{
		"session_id": victim.ID,
		"tenant_id":  victim.TenantID,
	}))
}

// releaseStateLocked reclaims a session's arena store; caller holds the
// lock. Safe to call repeatedly.
func (r *Registry) releaseStateLocked(sess *Session) {
	if sess.StateHandle != "" {
		r.arena.Release(sess.StateHandle)
		sess.StateHandle = ""
	}
}

// CountByTenant returns the number of non-terminal sessions for a tenant.
// Consulted by the kernel's quota checks.
func (r *Registry) CountByTenant(tenantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, sess := range r.sessions {
		if sess.TenantID == tenantID && !sess.Status.Terminal() {
			n++
		}
	}
	return n
}

// StateBytesByTenant returns the JSON-encoded size of all live namespaced
// state held by a tenant's sessions. Consulted by the kernel's quota checks.
func (r *Registry) StateBytesByTenant(tenantID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, sess := range r.sessions {
		if sess.TenantID != tenantID || sess.StateHandle == "" {
			continue
		}
		st, ok := r.arena.Get(sess.StateHandle)
		if !ok {
			continue
		}
		if data, err := json.Marshal(st.Export()); err == nil {
			total += int64(len(data))
		}
	}
	return total
}
