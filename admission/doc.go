// Package admission implements the policy layer consulted by the kernel
// before any work is admitted: tenant validation (existence, status, IP
// allowlist) and per-tenant token-bucket rate limiting.
//
// Denials always short-circuit before any session or state work begins and
// carry a specific error code; callers never receive a generic rejection.
// The kernel consults CheckLimit per admitted operation, not only at session
// creation.
package admission
