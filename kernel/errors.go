package kernel

import "fmt"

// Error codes surfaced by kernel operations.
const (
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeAtomicTimeout    = "ATOMIC_TIMEOUT"
	CodeContextNotFound  = "CONTEXT_NOT_FOUND"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodeSessionNotPaused = "SESSION_NOT_PAUSED"
)

// QuotaError reports a tenant exceeding a configured quota. Quota checks
// run before any work is admitted, so a QuotaError implies no partial work.
type QuotaError struct {
	TenantID string
	Kind     string // "active_sessions", "executions" or "state_bytes"
	Limit    int64
	Current  int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("kernel: tenant %q exceeded %s quota (%d/%d)", e.TenantID, e.Kind, e.Current, e.Limit)
}

// Code returns the stable error code for programmatic handling.
func (e *QuotaError) Code() string { return CodeQuotaExceeded }

// AtomicError reports an atomic operation failing after exhausting its
// retry budget. It wraps the last attempt's error.
type AtomicError struct {
	OpID     string
	Attempts int
	Err      error
}

func (e *AtomicError) Error() string {
	return fmt.Sprintf("kernel: atomic operation %q failed after %d attempts: %v", e.OpID, e.Attempts, e.Err)
}

func (e *AtomicError) Unwrap() error { return e.Err }

// Code returns the stable error code for programmatic handling.
func (e *AtomicError) Code() string { return CodeAtomicTimeout }

// NotFoundError reports a missing kernel-managed entity.
type NotFoundError struct {
	Kind string // "context" or "session"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("kernel: %s %q not found", e.Kind, e.ID)
}

// Code returns the stable error code for programmatic handling.
func (e *NotFoundError) Code() string {
	if e.Kind == "session" {
		return CodeSessionNotFound
	}
	return CodeContextNotFound
}
