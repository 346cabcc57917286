package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kernelmesh/kernelmesh/admission"
	"github.com/kernelmesh/kernelmesh/core"
	"github.com/kernelmesh/kernelmesh/logging"
	"github.com/kernelmesh/kernelmesh/observability"
	"github.com/kernelmesh/kernelmesh/persist"
	"github.com/kernelmesh/kernelmesh/session"
	"github.com/kernelmesh/kernelmesh/snapshot"
	"github.com/kernelmesh/kernelmesh/state"
)

// Kernel operation names passed through admission checks.
const (
	OpCreateContext = "create_context"
	OpExecute       = "execute"
	OpPause         = "pause"
	OpResume        = "resume"
)

// Quota caps a tenant's concurrent footprint. Zero values mean unlimited.
type Quota struct {
	// MaxActiveSessions bounds non-terminal sessions per tenant.
	MaxActiveSessions int
	// MaxExecutions bounds live execution contexts per tenant.
	MaxExecutions int
	// MaxStateBytes bounds the encoded size of all live namespaced state
	// held by the tenant's sessions.
	MaxStateBytes int64
}

// ContextStatus is the lifecycle state of an execution context.
type ContextStatus string

const (
	ContextRunning ContextStatus = "running"
	ContextStopped ContextStatus = "stopped"
)

// ExecutionContext is one tracked unit of orchestrated work. It carries a
// cancellation signal that operations must honor at blocking points.
// Identity fields are fixed at creation; the session binding and lifecycle
// status can change concurrently and are read through accessors.
type ExecutionContext struct {
	ExecutionID   string
	TenantID      string
	ThreadID      string
	CorrelationID string
	StartTime     time.Time

	mu        sync.Mutex
	sessionID string
	status    ContextStatus

	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the cancellation context bound to this execution.
func (ec *ExecutionContext) Context() context.Context { return ec.ctx }

// SessionID returns the session the context is currently bound to. Resume
// and expiry recovery may rebind a live context to a restored session.
func (ec *ExecutionContext) SessionID() string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.sessionID
}

// Status reports the context's lifecycle state.
func (ec *ExecutionContext) Status() ContextStatus {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.status
}

func (ec *ExecutionContext) bindSession(id string) {
	ec.mu.Lock()
	ec.sessionID = id
	ec.mu.Unlock()
}

func (ec *ExecutionContext) setStatus(s ContextStatus) {
	ec.mu.Lock()
	ec.status = s
	ec.mu.Unlock()
}

// Operation is the unit of work run under an execution context. It receives
// the execution's cancellation context and the session's namespaced state.
// Individual state mutations are atomic; the operation as a whole is not
// transactional, so mutations made before a failure persist.
type Operation func(ctx context.Context, st *state.Store) (any, error)

// Options configures a Kernel beyond its required collaborators.
type Options struct {
	// Validator and Limiter form the admission layer. Both optional; absent
	// checks admit everything.
	Validator *admission.Validator
	Limiter   *admission.RateLimiter
	// Logger receives structured log output. Defaults to NoOpLogger.
	Logger logging.Logger
	// Sink receives kernel lifecycle events. Defaults to NoOpSink.
	Sink observability.Sink
	// Clock injects a time source; used by tests.
	Clock func() time.Time
}

// Kernel coordinates execution contexts over the session registry, gating
// admission, enforcing quotas and checkpointing through the persistor.
type Kernel struct {
	registry  *session.Registry
	persistor persist.Persistor
	codec     *snapshot.Codec
	validator *admission.Validator
	limiter   *admission.RateLimiter
	logger    logging.Logger
	sink      observability.Sink
	now       func() time.Time

	mu         sync.Mutex
	contexts   map[string]*ExecutionContext
	quotas     map[string]Quota
	executions map[string]int     // live execution contexts per tenant
	opLocks    map[string]*opLock // entries dropped once unreferenced
}

// New constructs a kernel over its collaborators.
func New(registry *session.Registry, persistor persist.Persistor, codec *snapshot.Codec, optFns ...func(*Options)) *Kernel {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Sink:   observability.NoOpSink{},
		Clock:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Kernel{
		registry:   registry,
		persistor:  persistor,
		codec:      codec,
		validator:  opts.Validator,
		limiter:    opts.Limiter,
		logger:     opts.Logger,
		sink:       opts.Sink,
		now:        opts.Clock,
		contexts:   make(map[string]*ExecutionContext),
		quotas:     make(map[string]Quota),
		executions: make(map[string]int),
		opLocks:    make(map[string]*opLock),
	}
}

// SetQuota installs or replaces a tenant's quota.
func (k *Kernel) SetQuota(tenantID string, q Quota) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.quotas[tenantID] = q
}

// QuotaFor returns the tenant's quota, zero-valued when none is set.
func (k *Kernel) QuotaFor(tenantID string) Quota {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.quotas[tenantID]
}

// admit runs the admission layer for one operation: tenant validation first,
// then the per-operation rate limit. Validator and limiter are independently
// optional; an absent one admits everything on its axis.
func (k *Kernel) admit(ctx context.Context, tenantID, operation string, rc admission.RequestContext) error {
	if k.validator != nil {
		res := k.validator.ValidateTenant(tenantID, operation, rc)
		if !res.Valid {
			k.sink.Emit(ctx, observability.NewEvent(observability.EventTenantDenied, "kernel", map[string]any{
				"tenant_id":  tenantID,
				"operation":  operation,
				"error_code": res.ErrorCode,
			}))
			return res.Err
		}
	}

	if k.limiter != nil {
		var cfg admission.TenantConfig
		if k.validator != nil {
			cfg, _ = k.validator.Lookup(tenantID)
		}
		decision := k.limiter.CheckLimit(tenantID, cfg, operation)
		if !decision.Allowed {
			k.sink.Emit(ctx, observability.NewEvent(observability.EventRateLimitDenied, "kernel", map[string]any{
				"tenant_id":  tenantID,
				"operation":  operation,
				"limit":      decision.Limit,
				"error_code": admission.CodeRateLimited,
			}))
			return &admission.RateLimitError{
				TenantID:  tenantID,
				Operation: operation,
				Limit:     decision.Limit,
				ResetTime: decision.ResetTime,
			}
		}
	}
	return nil
}

// CreateContext admits a tenant, enforces its session quota and opens an
// execution context over a session for the thread. An existing active
// session for the thread is reused; otherwise one is created.
func (k *Kernel) CreateContext(ctx context.Context, tenantID, threadID string, rc admission.RequestContext) (*ExecutionContext, error) {
	if err := k.admit(ctx, tenantID, OpCreateContext, rc); err != nil {
		return nil, err
	}

	q := k.QuotaFor(tenantID)
	if q.MaxActiveSessions > 0 {
		if current := k.registry.CountByTenant(tenantID); current >= q.MaxActiveSessions {
			k.denyQuota(ctx, tenantID, "active_sessions", int64(q.MaxActiveSessions), int64(current))
			return nil, &QuotaError{TenantID: tenantID, Kind: "active_sessions", Limit: int64(q.MaxActiveSessions), Current: int64(current)}
		}
	}

	if q.MaxStateBytes > 0 {
		if current := k.registry.StateBytesByTenant(tenantID); current >= q.MaxStateBytes {
			k.denyQuota(ctx, tenantID, "state_bytes", q.MaxStateBytes, current)
			return nil, &QuotaError{TenantID: tenantID, Kind: "state_bytes", Limit: q.MaxStateBytes, Current: current}
		}
	}

	if q.MaxExecutions > 0 {
		k.mu.Lock()
		current := k.executions[tenantID]
		k.mu.Unlock()
		if current >= q.MaxExecutions {
			k.denyQuota(ctx, tenantID, "executions", int64(q.MaxExecutions), int64(current))
			return nil, &QuotaError{TenantID: tenantID, Kind: "executions", Limit: int64(q.MaxExecutions), Current: int64(current)}
		}
	}

	sess, ok := k.registry.FindSessionByThread(threadID, tenantID)
	if !ok {
		sess = k.registry.CreateSession(tenantID, threadID, nil)
	}

	execCtx, cancel := context.WithCancel(ctx)
	ec := &ExecutionContext{
		ExecutionID:   core.NewID(),
		TenantID:      tenantID,
		ThreadID:      threadID,
		CorrelationID: rc.CorrelationID,
		StartTime:     k.now(),
		sessionID:     sess.ID,
		status:        ContextRunning,
		ctx:           execCtx,
		cancel:        cancel,
	}

	k.mu.Lock()
	k.contexts[ec.ExecutionID] = ec
	k.executions[tenantID]++
	k.mu.Unlock()

	k.logger.Info("Execution context created", "execution_id", ec.ExecutionID, "tenant_id", tenantID, "session_id", sess.ID)
	k.sink.Emit(ctx, observability.NewEvent(observability.EventContextCreated, "kernel", map[string]any{
		"execution_id": ec.ExecutionID,
		"tenant_id":    tenantID,
		"session_id":   sess.ID,
	}))
	return ec, nil
}

// StopContext cancels and removes an execution context. Stopping an unknown
// or already-stopped context is an error.
func (k *Kernel) StopContext(ctx context.Context, executionID string) error {
	k.mu.Lock()
	ec, ok := k.contexts[executionID]
	if ok {
		delete(k.contexts, executionID)
		if k.executions[ec.TenantID] > 0 {
			k.executions[ec.TenantID]--
		}
	}
	k.mu.Unlock()

	if !ok {
		return &NotFoundError{Kind: "context", ID: executionID}
	}
	ec.setStatus(ContextStopped)
	ec.cancel()

	k.sink.Emit(ctx, observability.NewEvent(observability.EventContextDestroyed, "kernel", map[string]any{
		"execution_id": executionID,
		"tenant_id":    ec.TenantID,
	}))
	return nil
}

// lookupContext returns the live execution context.
func (k *Kernel) lookupContext(executionID string) (*ExecutionContext, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ec, ok := k.contexts[executionID]
	if !ok {
		return nil, &NotFoundError{Kind: "context", ID: executionID}
	}
	return ec, nil
}

// ExecuteWithContext runs an operation against the execution context's
// session state. The execution quota and per-operation rate limit are
// checked before any work starts. The session's activity clock is updated
// whether the operation succeeds or fails; state mutations made before a
// failure are not rolled back.
func (k *Kernel) ExecuteWithContext(ctx context.Context, executionID string, op Operation) (any, error) {
	ec, err := k.lookupContext(executionID)
	if err != nil {
		return nil, err
	}

	if err := k.admit(ctx, ec.TenantID, OpExecute, admission.RequestContext{CorrelationID: ec.CorrelationID}); err != nil {
		return nil, err
	}

	q := k.QuotaFor(ec.TenantID)
	if q.MaxExecutions > 0 {
		k.mu.Lock()
		current := k.executions[ec.TenantID]
		k.mu.Unlock()
		if current > q.MaxExecutions {
			k.denyQuota(ctx, ec.TenantID, "executions", int64(q.MaxExecutions), int64(current))
			return nil, &QuotaError{TenantID: ec.TenantID, Kind: "executions", Limit: int64(q.MaxExecutions), Current: int64(current)}
		}
	}

	if q.MaxStateBytes > 0 {
		if current := k.registry.StateBytesByTenant(ec.TenantID); current >= q.MaxStateBytes {
			k.denyQuota(ctx, ec.TenantID, "state_bytes", q.MaxStateBytes, current)
			return nil, &QuotaError{TenantID: ec.TenantID, Kind: "state_bytes", Limit: q.MaxStateBytes, Current: current}
		}
	}

	sessionID := ec.SessionID()
	st, ok := k.registry.StateFor(sessionID)
	if !ok {
		// The session may have expired under us; recover it by thread.
		rec, rerr := k.registry.RecoverSession(ctx, ec.ThreadID)
		if rerr != nil {
			return nil, rerr
		}
		sessionID = rec.Session.ID
		ec.bindSession(sessionID)
		st, ok = k.registry.StateFor(sessionID)
		if !ok {
			return nil, &NotFoundError{Kind: "session", ID: sessionID}
		}
	}

	// Failed attempts count as activity too.
	defer k.registry.Touch(sessionID)

	select {
	case <-ec.ctx.Done():
		return nil, ec.ctx.Err()
	default:
	}

	result, opErr := op(ec.ctx, st)
	if opErr != nil {
		k.logger.Warn("Operation failed", "execution_id", executionID, "error", opErr)
		return nil, opErr
	}
	return result, nil
}

// Pause checkpoints the execution context's session: events and exported
// state are captured through the codec, written through the persistor (as a
// delta against the last stored full snapshot when profitable) and the
// session transitions to paused. The returned hash is the resumable handle.
func (k *Kernel) Pause(ctx context.Context, executionID, reason string) (string, error) {
	started := k.now()

	ec, err := k.lookupContext(executionID)
	if err != nil {
		return "", err
	}
	if err := k.admit(ctx, ec.TenantID, OpPause, admission.RequestContext{CorrelationID: ec.CorrelationID}); err != nil {
		return "", err
	}

	sessionID := ec.SessionID()
	payload, ok := k.registry.ExportState(sessionID)
	if !ok {
		return "", &NotFoundError{Kind: "session", ID: sessionID}
	}
	events := k.registry.EventsFor(sessionID)

	// Snapshots are keyed by thread so recovery can find them without the
	// execution id that produced them.
	snap, err := k.codec.Create(ec.ThreadID, events, payload, snapshot.WithTimestamp(k.now().UnixMilli()))
	if err != nil {
		return "", err
	}

	stored := snap
	if base, berr := k.latestFullSnapshot(ctx, ec.ThreadID); berr != nil {
		k.logger.Warn("Delta base lookup failed; writing full snapshot", "execution_id", executionID, "error", berr)
	} else if base != nil {
		if d, derr := k.codec.Diff(base, snap); derr == nil {
			stored = d
		}
	}

	if err := k.persistor.Append(ctx, stored); err != nil {
		k.logger.Error("Snapshot append failed", "execution_id", executionID, "error", err)
		return "", err
	}

	if !k.registry.MarkPaused(sessionID) {
		return "", fmt.Errorf("kernel: session %q cannot pause from its current status", sessionID)
	}

	k.logger.Info("Session paused", "session_id", sessionID, "reason", reason, "snapshot_hash", stored.Hash,
		"is_delta", stored.IsDelta, "duration", k.now().Sub(started))
	k.sink.Emit(ctx, observability.NewEvent(observability.EventSnapshotWritten, "kernel", map[string]any{
		"execution_id":  executionID,
		"session_id":    sessionID,
		"thread_id":     ec.ThreadID,
		"snapshot_hash": stored.Hash,
		"is_delta":      stored.IsDelta,
		"reason":        reason,
	}))
	return stored.Hash, nil
}

// latestFullSnapshot walks the thread's stored chain from the newest entry
// back to the most recent full snapshot, the only valid delta base. Returns
// nil when the thread has no full snapshot yet.
func (k *Kernel) latestFullSnapshot(ctx context.Context, threadID string) (*snapshot.Snapshot, error) {
	hashes, err := k.persistor.ListHashes(ctx, threadID)
	if err != nil {
		return nil, err
	}
	for i := len(hashes) - 1; i >= 0; i-- {
		snap, err := k.persistor.GetByHash(ctx, hashes[i])
		if err != nil {
			return nil, err
		}
		if !snap.IsDelta {
			return snap, nil
		}
	}
	return nil, nil
}

// Resume restores a session from a stored snapshot and marks it active. The
// snapshot's owning tenant must pass admission. Unknown hashes surface
// persist.NotFoundError and tampered content snapshot.CorruptError; neither
// is ever treated as "start fresh".
func (k *Kernel) Resume(ctx context.Context, snapshotID string) error {
	full, err := persist.Reconstruct(ctx, k.persistor, k.codec, snapshotID)
	if err != nil {
		return err
	}

	var payload session.SnapshotState
	data, err := json.Marshal(full.State)
	if err != nil {
		return fmt.Errorf("decode snapshot state: %w", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode snapshot state: %w", err)
	}

	// The snapshot's owning tenant goes through the same admission gate as
	// every other kernel operation.
	if err := k.admit(ctx, payload.TenantID, OpResume, admission.RequestContext{}); err != nil {
		return err
	}

	sess := k.registry.Restore(payload, full.Events)

	// Rebind any live contexts for the thread to the restored session.
	k.mu.Lock()
	for _, ec := range k.contexts {
		if ec.ThreadID == full.ExecutionContextID {
			ec.bindSession(sess.ID)
		}
	}
	k.mu.Unlock()

	k.logger.Info("Session resumed", "session_id", sess.ID, "snapshot_hash", snapshotID)
	k.sink.Emit(ctx, observability.NewEvent(observability.EventSnapshotRestored, "kernel", map[string]any{
		"session_id":    sess.ID,
		"tenant_id":     sess.TenantID,
		"thread_id":     sess.ThreadID,
		"snapshot_hash": snapshotID,
	}))
	return nil
}

func (k *Kernel) denyQuota(ctx context.Context, tenantID, kind string, limit, current int64) {
	k.logger.Warn("Quota exceeded", "tenant_id", tenantID, "quota", kind, "limit", limit, "current", current)
	k.sink.Emit(ctx, observability.NewEvent(observability.EventQuotaDenied, "kernel", map[string]any{
		"tenant_id":  tenantID,
		"quota":      kind,
		"limit":      limit,
		"current":    current,
		"error_code": CodeQuotaExceeded,
	}))
}
