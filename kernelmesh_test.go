package kernelmesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelmesh/kernelmesh/admission"
	"github.com/kernelmesh/kernelmesh/config"
	"github.com/kernelmesh/kernelmesh/kernel"
	"github.com/kernelmesh/kernelmesh/logging"
	"github.com/kernelmesh/kernelmesh/state"
)

func newTestMesh(t *testing.T) *Mesh {
	t.Helper()
	m, err := New(func(o *Options) {
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	m.RegisterTenant(admission.TenantConfig{
		TenantID: "tenant-1",
		Status:   admission.TenantActive,
	})
	return m
}

func TestMesh_Execute(t *testing.T) {
	m := newTestMesh(t)

	result, err := m.Execute(context.Background(), "tenant-1", "thread-1", admission.RequestContext{}, func(ctx context.Context, st *state.Store) (any, error) {
		if err := st.Set("workflow", "step", 1); err != nil {
			return nil, err
		}
		v, _ := st.Get("workflow", "step")
		return v, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result)

	// The session persists between executions on the same thread.
	result, err = m.Execute(context.Background(), "tenant-1", "thread-1", admission.RequestContext{}, func(ctx context.Context, st *state.Store) (any, error) {
		v, _ := st.Get("workflow", "step")
		return v, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result)
}

func TestMesh_UnknownTenantDenied(t *testing.T) {
	m := newTestMesh(t)

	_, err := m.Execute(context.Background(), "ghost", "thread-1", admission.RequestContext{}, func(ctx context.Context, st *state.Store) (any, error) {
		return nil, nil
	})
	var terr *admission.TenantError
	require.ErrorAs(t, err, &terr)
}

func TestMesh_PauseResumeRoundTrip(t *testing.T) {
	m := newTestMesh(t)

	ec, err := m.Kernel().CreateContext(context.Background(), "tenant-1", "thread-1", admission.RequestContext{})
	require.NoError(t, err)

	require.True(t, m.Registry().AddConversationEntry(ec.SessionID(), "hello", "hi", "agent", nil))

	hash, err := m.Kernel().Pause(context.Background(), ec.ExecutionID, "maintenance")
	require.NoError(t, err)
	require.NoError(t, m.Kernel().Resume(context.Background(), hash))

	sess, ok := m.Registry().FindSessionByThread("thread-1", "tenant-1")
	require.True(t, ok)
	require.Len(t, sess.ConversationHistory, 1)
	assert.Equal(t, "hello", sess.ConversationHistory[0].Input)
}

func TestMesh_Quota(t *testing.T) {
	m := newTestMesh(t)
	m.SetQuota("tenant-1", kernel.Quota{MaxActiveSessions: 1})

	_, err := m.Kernel().CreateContext(context.Background(), "tenant-1", "thread-1", admission.RequestContext{})
	require.NoError(t, err)

	_, err = m.Kernel().CreateContext(context.Background(), "tenant-1", "thread-2", admission.RequestContext{})
	var qerr *kernel.QuotaError
	require.ErrorAs(t, err, &qerr)
}

func TestMesh_LoggerBuiltFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.LogFormat = "text"

	m, err := New(func(o *Options) { o.Config = cfg })
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	_, isKernelLogger := m.opts.Logger.(*logging.KernelLogger)
	require.True(t, isKernelLogger, "default logger should come from the config")

	// An explicit logger wins over the config.
	quiet, err := New(func(o *Options) { o.Logger = logging.NoOpLogger{} })
	require.NoError(t, err)
	t.Cleanup(func() { _ = quiet.Close() })
	assert.Equal(t, logging.NoOpLogger{}, quiet.opts.Logger)
}

func TestMesh_GlobalState(t *testing.T) {
	m := newTestMesh(t)

	require.NoError(t, m.GlobalState().Set("features", "beta", true))
	v, ok := m.GlobalState().Get("features", "beta")
	require.True(t, ok)
	assert.Equal(t, true, v)

	// Two meshes do not share registries or kernels, only the process-wide
	// store is explicitly shared by whoever passes it around.
	other := newTestMesh(t)
	_, ok = other.GlobalState().Get("features", "beta")
	assert.False(t, ok)
}
