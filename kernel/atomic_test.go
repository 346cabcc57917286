package kernel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastAtomicOptions() AtomicOptions {
	return AtomicOptions{Timeout: time.Second, Retries: 3, RetryInterval: time.Millisecond}
}

func TestAtomic_Success(t *testing.T) {
	f := newFixture(t)

	result, err := f.kernel.ExecuteAtomicOperation(context.Background(), "op-1", func(ctx context.Context) (any, error) {
		return 42, nil
	}, fastAtomicOptions())
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestAtomic_RetriesTransientFailure(t *testing.T) {
	f := newFixture(t)

	var calls int
	result, err := f.kernel.ExecuteAtomicOperation(context.Background(), "op-1", func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}, fastAtomicOptions())
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestAtomic_ExhaustedRetries(t *testing.T) {
	f := newFixture(t)

	boom := errors.New("still broken")
	_, err := f.kernel.ExecuteAtomicOperation(context.Background(), "op-1", func(ctx context.Context) (any, error) {
		return nil, boom
	}, fastAtomicOptions())

	var aerr *AtomicError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "op-1", aerr.OpID)
	assert.Equal(t, 3, aerr.Attempts)
	assert.ErrorIs(t, err, boom)
}

func TestAtomic_MutualExclusionPerOpID(t *testing.T) {
	f := newFixture(t)

	var inside atomic.Int32
	var wg sync.WaitGroup
	body := func(ctx context.Context) (any, error) {
		if inside.Add(1) > 1 {
			return nil, errors.New("interleaved execution")
		}
		time.Sleep(5 * time.Millisecond)
		inside.Add(-1)
		return nil, nil
	}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.kernel.ExecuteAtomicOperation(context.Background(), "shared", body, fastAtomicOptions())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestAtomic_DistinctOpIDsRunConcurrently(t *testing.T) {
	f := newFixture(t)

	release := make(chan struct{})
	firstRunning := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.kernel.ExecuteAtomicOperation(context.Background(), "op-a", func(ctx context.Context) (any, error) {
			close(firstRunning)
			<-release
			return nil, nil
		}, fastAtomicOptions())
		assert.NoError(t, err)
	}()

	<-firstRunning
	// op-b is not blocked by op-a holding its lock.
	done := make(chan struct{})
	go func() {
		_, err := f.kernel.ExecuteAtomicOperation(context.Background(), "op-b", func(ctx context.Context) (any, error) {
			return nil, nil
		}, fastAtomicOptions())
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct opID blocked behind unrelated lock")
	}
	close(release)
	wg.Wait()
}

func TestAtomic_LockEntriesReleased(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for _, opID := range []string{"shared", "op-a", "op-b"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.kernel.ExecuteAtomicOperation(context.Background(), id, func(ctx context.Context) (any, error) {
					return nil, nil
				}, fastAtomicOptions())
				assert.NoError(t, err)
			}(opID)
		}
	}
	wg.Wait()

	// Once the last caller for an opID leaves, its lock entry is dropped.
	f.kernel.mu.Lock()
	remaining := len(f.kernel.opLocks)
	f.kernel.mu.Unlock()
	assert.Zero(t, remaining)
}

func TestAtomic_CancelledWhileWaiting(t *testing.T) {
	f := newFixture(t)

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_, _ = f.kernel.ExecuteAtomicOperation(context.Background(), "op-1", func(ctx context.Context) (any, error) {
			close(holding)
			<-release
			return nil, nil
		}, fastAtomicOptions())
	}()
	<-holding
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.kernel.ExecuteAtomicOperation(ctx, "op-1", func(ctx context.Context) (any, error) {
		return nil, nil
	}, fastAtomicOptions())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAtomic_PerAttemptTimeout(t *testing.T) {
	f := newFixture(t)

	opts := AtomicOptions{Timeout: 5 * time.Millisecond, Retries: 2, RetryInterval: time.Millisecond}
	var calls int
	_, err := f.kernel.ExecuteAtomicOperation(context.Background(), "op-1", func(ctx context.Context) (any, error) {
		calls++
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return nil, nil
		}
	}, opts)

	var aerr *AtomicError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 2, calls, "timeout applies per attempt, then retries")
}
