package admission

import (
	"sync"
	"time"
)

// TenantStatus is the provisioning state of a tenant.
type TenantStatus string

const (
	// TenantActive tenants may be admitted.
	TenantActive TenantStatus = "active"
	// TenantSuspended tenants are temporarily blocked (billing, abuse).
	TenantSuspended TenantStatus = "suspended"
	// TenantInactive tenants are deprovisioned.
	TenantInactive TenantStatus = "inactive"
)

// Limits configures a tenant's rate limiting window.
type Limits struct {
	// RequestsPerWindow is the sustained request budget per window.
	// 0 means unlimited.
	RequestsPerWindow int `json:"requests_per_window"`
	// Burst is the extra headroom above the sustained budget that may be
	// consumed at once.
	Burst int `json:"burst"`
	// Window is the rate limiting window; 0 falls back to the limiter's
	// default (60s).
	Window time.Duration `json:"window"`
}

// Security configures tenant-level access restrictions.
type Security struct {
	// AllowedIPs restricts callers to the listed source addresses. Empty
	// means no IP restriction.
	AllowedIPs []string `json:"allowed_ips,omitempty"`
}

// TenantConfig is read-only policy input describing a tenant. The kernel
// consults it, never mutates it.
type TenantConfig struct {
	TenantID string       `json:"tenant_id"`
	Status   TenantStatus `json:"status"`
	Limits   Limits       `json:"limits"`
	Security Security     `json:"security"`
}

// RequestContext carries the caller attributes a validation decision may
// depend on.
type RequestContext struct {
	SourceIP      string
	CorrelationID string
}

// Result is the outcome of a tenant validation check. When Valid is false,
// Err carries a *TenantError with a specific denial code.
type Result struct {
	Valid     bool
	Err       error
	ErrorCode string
}

// Validator checks tenants against their registered configuration. Safe for
// concurrent use.
type Validator struct {
	mu      sync.RWMutex
	tenants map[string]TenantConfig
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{tenants: make(map[string]TenantConfig)}
}

// Register adds or replaces a tenant configuration.
func (v *Validator) Register(cfg TenantConfig) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tenants[cfg.TenantID] = cfg
}

// Lookup returns the configuration for a tenant.
func (v *Validator) Lookup(tenantID string) (TenantConfig, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cfg, ok := v.tenants[tenantID]
	return cfg, ok
}

// ValidateTenant checks whether a tenant may perform the operation. Checks
// run in a fixed order (existence, status, IP allowlist) and the first
// failure wins, reported with its specific code.
func (v *Validator) ValidateTenant(tenantID, operation string, rc RequestContext) Result {
	cfg, ok := v.Lookup(tenantID)
	if !ok {
		return deny(tenantID, operation, "tenant not found", CodeTenantNotFound)
	}

	switch cfg.Status {
	case TenantActive:
		// fall through to security checks
	case TenantSuspended:
		return deny(tenantID, operation, "tenant is suspended", CodeTenantSuspended)
	default:
		return deny(tenantID, operation, "tenant is inactive", CodeTenantInactive)
	}

	if len(cfg.Security.AllowedIPs) > 0 {
		allowed := false
		for _, ip := range cfg.Security.AllowedIPs {
			if ip == rc.SourceIP {
				allowed = true
				break
			}
		}
		if !allowed {
			return deny(tenantID, operation, "source IP not in allowlist", CodeIPNotAllowed)
		}
	}

	return Result{Valid: true}
}

func deny(tenantID, operation, reason, code string) Result {
	return Result{
		Valid:     false,
		Err:       &TenantError{TenantID: tenantID, Operation: operation, Reason: reason, ErrCode: code},
		ErrorCode: code,
	}
}
