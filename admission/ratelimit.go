package admission

import (
	"sync"
	"time"
)

// DefaultWindow is the rate limiting window applied when a tenant config
// does not specify one.
const DefaultWindow = 60 * time.Second

// Decision is the outcome of a rate limit check. Current counts admitted
// operations in the present window; Remaining is the headroom left before
// further operations are rejected.
type Decision struct {
	Allowed   bool
	Current   int
	Limit     int
	ResetTime time.Time
	Remaining int
}

// bucket tracks one tenant's token balance and window counters.
type bucket struct {
	tokens      float64
	lastRefill  time.Time
	windowStart time.Time
	current     int
}

// RateLimiter implements per-tenant token-bucket rate limiting with burst
// headroom. Tokens refill continuously at RequestsPerWindow per window;
// the bucket capacity is RequestsPerWindow + Burst, so an idle tenant can
// absorb a burst above the sustained budget. Safe for concurrent use.
type RateLimiter struct {
	mu            sync.Mutex
	buckets       map[string]*bucket
	now           func() time.Time
	defaultWindow time.Duration
}

// RateLimiterOption customizes a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithClock injects a time source; used by tests.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) { rl.now = now }
}

// WithDefaultWindow overrides the window applied to tenants whose config
// leaves it unset.
func WithDefaultWindow(window time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		if window > 0 {
			rl.defaultWindow = window
		}
	}
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter(optFns ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{buckets: make(map[string]*bucket), now: time.Now, defaultWindow: DefaultWindow}
	for _, fn := range optFns {
		fn(rl)
	}
	return rl
}

// CheckLimit consumes one token for the operation if available and reports
// the decision. A zero RequestsPerWindow means the tenant is unlimited.
func (rl *RateLimiter) CheckLimit(tenantID string, cfg TenantConfig, operation string) Decision {
	limit := cfg.Limits.RequestsPerWindow
	window := cfg.Limits.Window
	if window <= 0 {
		window = rl.defaultWindow
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limit <= 0 {
		return Decision{Allowed: true, Limit: 0, Remaining: -1, ResetTime: now.Add(window)}
	}

	capacity := float64(limit + cfg.Limits.Burst)

	b, ok := rl.buckets[tenantID]
	if !ok {
		b = &bucket{tokens: capacity, lastRefill: now, windowStart: now}
		rl.buckets[tenantID] = b
	}

	// Continuous refill at the sustained rate, capped at capacity.
	elapsed := now.Sub(b.lastRefill)
	if elapsed > 0 {
		b.tokens += elapsed.Seconds() * float64(limit) / window.Seconds()
		if b.tokens > capacity {
			b.tokens = capacity
		}
		b.lastRefill = now
	}

	// Roll the accounting window.
	if now.Sub(b.windowStart) >= window {
		b.windowStart = now
		b.current = 0
	}
	reset := b.windowStart.Add(window)

	if b.tokens < 1 {
		return Decision{Allowed: false, Current: b.current, Limit: limit, ResetTime: reset, Remaining: 0}
	}

	b.tokens--
	b.current++
	return Decision{
		Allowed:   true,
		Current:   b.current,
		Limit:     limit,
		ResetTime: reset,
		Remaining: int(b.tokens),
	}
}

// Reset clears a tenant's bucket; the next check starts from a full bucket.
func (rl *RateLimiter) Reset(tenantID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, tenantID)
}
