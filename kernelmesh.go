// Package kernelmesh provides a high-level façade over the execution kernel
// and its collaborators (session registry, snapshot codec, persistor and
// admission layer), enabling rapid construction of multi-tenant execution
// runtimes. Most applications interact with this package by:
//  1. Creating a Mesh via New() (optionally overriding defaults)
//  2. Registering tenants with their limits
//  3. Opening execution contexts and running operations through the kernel
//
// The façade delegates coordination to kernel.Kernel while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a storage path for
// durable snapshots and a structured logger.
package kernelmesh

import (
	"context"
	"fmt"

	"github.com/kernelmesh/kernelmesh/admission"
	"github.com/kernelmesh/kernelmesh/config"
	"github.com/kernelmesh/kernelmesh/kernel"
	"github.com/kernelmesh/kernelmesh/logging"
	"github.com/kernelmesh/kernelmesh/observability"
	"github.com/kernelmesh/kernelmesh/persist"
	"github.com/kernelmesh/kernelmesh/persist/sqlite"
	"github.com/kernelmesh/kernelmesh/session"
	"github.com/kernelmesh/kernelmesh/snapshot"
	"github.com/kernelmesh/kernelmesh/state"
)

// Options configures a Mesh instance.
type Options struct {
	// Config carries the lifecycle and storage tuning. Defaults to
	// config.Default().
	Config config.Config

	// Persistor overrides the snapshot store chosen from Config (SQLite when
	// StoragePath is set, in-memory otherwise).
	Persistor persist.Persistor

	// Logger overrides the logger otherwise built from Config.LogLevel and
	// Config.LogFormat.
	Logger logging.Logger

	// Sink receives structured lifecycle events (defaults to NoOp sink).
	Sink observability.Sink
}

// Mesh is the high-level façade aggregating the kernel and its services.
// It owns every collaborator: there are no package-level singletons, so
// tests construct an isolated Mesh per run.
type Mesh struct {
	opts      Options
	kernel    *kernel.Kernel
	registry  *session.Registry
	persistor persist.Persistor
	codec     *snapshot.Codec
	validator *admission.Validator
	limiter   *admission.RateLimiter
	global    *state.GlobalStore

	closers []func() error
}

// New creates a Mesh with optional overrides. Unset services are
// initialized with defaults derived from the configuration.
func New(optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		Config: config.Default(),
		Sink:   observability.NoOpSink{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewKernelLogger(logging.ParseLevel(opts.Config.LogLevel), opts.Config.LogFormat)
	}

	m := &Mesh{opts: opts}

	m.persistor = opts.Persistor
	if m.persistor == nil {
		if opts.Config.StoragePath != "" {
			store, err := sqlite.Open(opts.Config.StoragePath)
			if err != nil {
				return nil, fmt.Errorf("open snapshot store: %w", err)
			}
			m.persistor = store
			m.closers = append(m.closers, store.Close)
		} else {
			m.persistor = persist.NewInMemoryPersistor(opts.Config.MaxSnapshots)
		}
	}

	m.codec = snapshot.NewCodec()
	m.validator = admission.NewValidator()
	m.limiter = admission.NewRateLimiter(admission.WithDefaultWindow(opts.Config.RateLimitWindow))
	m.global = state.NewGlobalStore()

	m.registry = session.NewRegistry(session.Config{
		MaxSessions:            opts.Config.MaxSessions,
		SessionTimeout:         opts.Config.SessionTimeout,
		MaxConversationHistory: opts.Config.MaxConversationHistory,
		SweepInterval:          opts.Config.SweepInterval,
		MaxNamespaces:          opts.Config.MaxNamespaces,
		MaxNamespaceSize:       opts.Config.MaxNamespaceSize,
	}, func(o *session.Options) {
		o.Logger = opts.Logger
		o.Sink = opts.Sink
		o.Persistor = m.persistor
		o.Codec = m.codec
	})
	m.registry.Start()

	m.kernel = kernel.New(m.registry, m.persistor, m.codec, func(o *kernel.Options) {
		o.Validator = m.validator
		o.Limiter = m.limiter
		o.Logger = opts.Logger
		o.Sink = opts.Sink
	})
	return m, nil
}

// Kernel exposes the execution kernel.
func (m *Mesh) Kernel() *kernel.Kernel { return m.kernel }

// Registry exposes the session registry.
func (m *Mesh) Registry() *session.Registry { return m.registry }

// Persistor exposes the snapshot store.
func (m *Mesh) Persistor() persist.Persistor { return m.persistor }

// GlobalState exposes the process-wide shared store. It is unscoped and
// crosses tenant boundaries; use it for shared configuration only, never
// for tenant data.
func (m *Mesh) GlobalState() *state.GlobalStore { return m.global }

// RegisterTenant installs or replaces a tenant's admission configuration.
func (m *Mesh) RegisterTenant(cfg admission.TenantConfig) { m.validator.Register(cfg) }

// SetQuota installs a tenant's kernel quota.
func (m *Mesh) SetQuota(tenantID string, q kernel.Quota) { m.kernel.SetQuota(tenantID, q) }

// Execute opens an execution context for the thread, runs the operation and
// tears the context down. It is a synchronous helper over the kernel's
// CreateContext/ExecuteWithContext/StopContext cycle.
func (m *Mesh) Execute(ctx context.Context, tenantID, threadID string, rc admission.RequestContext, op kernel.Operation) (any, error) {
	ec, err := m.kernel.CreateContext(ctx, tenantID, threadID, rc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = m.kernel.StopContext(ctx, ec.ExecutionID) }()

	return m.kernel.ExecuteWithContext(ctx, ec.ExecutionID, op)
}

// Close stops the background sweep and releases owned resources.
func (m *Mesh) Close() error {
	m.registry.Close()

	var firstErr error
	for _, closeFn := range m.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
