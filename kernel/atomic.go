package kernel

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// AtomicOptions tunes one atomic operation.
type AtomicOptions struct {
	// Timeout bounds each individual attempt. 0 means no per-attempt bound.
	Timeout time.Duration
	// Retries is the maximum number of attempts. Values below 1 mean a
	// single attempt.
	Retries int
	// RetryInterval is the initial backoff between attempts; it grows
	// exponentially. 0 uses the default.
	RetryInterval time.Duration
}

// DefaultAtomicOptions returns the standard attempt budget.
func DefaultAtomicOptions() AtomicOptions {
	return AtomicOptions{
		Timeout:       30 * time.Second,
		Retries:       3,
		RetryInterval: 100 * time.Millisecond,
	}
}

// opLock serializes callers sharing an opID. The refcount tracks callers
// holding or waiting on the lock so the kernel can drop the entry once the
// last one leaves.
type opLock struct {
	ch   chan struct{}
	refs int
}

func (k *Kernel) acquireOpLock(opID string) *opLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.opLocks[opID]
	if !ok {
		l = &opLock{ch: make(chan struct{}, 1)}
		k.opLocks[opID] = l
	}
	l.refs++
	return l
}

func (k *Kernel) releaseOpLock(opID string, l *opLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.opLocks, opID)
	}
}

// ExecuteAtomicOperation runs fn with at-most-one-concurrent-execution per
// opID. A second caller with the same opID blocks until the first finishes
// or its context is cancelled; callers with distinct opIDs proceed in
// parallel. Transient failures are retried with exponential backoff, the
// per-attempt timeout applied each time; exhausting the budget surfaces the
// last error wrapped in an AtomicError carrying the attempt count.
func (k *Kernel) ExecuteAtomicOperation(ctx context.Context, opID string, fn func(ctx context.Context) (any, error), opts AtomicOptions) (any, error) {
	lock := k.acquireOpLock(opID)
	defer k.releaseOpLock(opID, lock)

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-lock.ch }()

	maxTries := opts.Retries
	if maxTries < 1 {
		maxTries = 1
	}

	attempts := 0
	operation := func() (any, error) {
		attempts++

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if opts.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}
		result, err := fn(attemptCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return result, nil
	}

	bo := backoff.NewExponentialBackOff()
	if opts.RetryInterval > 0 {
		bo.InitialInterval = opts.RetryInterval
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(maxTries)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		k.logger.Warn("Atomic operation exhausted retries", "op_id", opID, "attempts", attempts, "error", err)
		return nil, &AtomicError{OpID: opID, Attempts: attempts, Err: err}
	}
	return result, nil
}
