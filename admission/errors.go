package admission

import (
	"fmt"
	"time"
)

// Tenant denial codes. Each maps to exactly one rejection reason so callers
// can branch programmatically.
const (
	CodeTenantNotFound  = "TENANT_NOT_FOUND"
	CodeTenantSuspended = "TENANT_SUSPENDED"
	CodeTenantInactive  = "TENANT_INACTIVE"
	CodeIPNotAllowed    = "IP_NOT_ALLOWED"
	CodeRateLimited     = "RATE_LIMITED"
)

// TenantError reports a tenant that may not perform the requested operation.
type TenantError struct {
	TenantID  string
	Operation string
	Reason    string
	ErrCode   string
}

func (e *TenantError) Error() string {
	return fmt.Sprintf("tenant %s denied for %s: %s", e.TenantID, e.Operation, e.Reason)
}

// Code returns the specific denial code, never a generic one.
func (e *TenantError) Code() string { return e.ErrCode }

// RateLimitError reports an operation rejected by the rate limiter.
type RateLimitError struct {
	TenantID  string
	Operation string
	Limit     int
	ResetTime time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("tenant %s rate limited for %s: limit %d, resets %s", e.TenantID, e.Operation, e.Limit, e.ResetTime.Format(time.RFC3339))
}

// Code returns the stable error code for programmatic branching.
func (e *RateLimitError) Code() string { return CodeRateLimited }
