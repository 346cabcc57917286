package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func limitedTenant(limit, burst int) TenantConfig {
	return TenantConfig{
		TenantID: "t1",
		Status:   TenantActive,
		Limits:   Limits{RequestsPerWindow: limit, Burst: burst, Window: time.Minute},
	}
}

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(WithClock(clock.now))
	cfg := limitedTenant(2, 1)

	// Capacity is limit+burst = 3.
	for i := 0; i < 3; i++ {
		d := rl.CheckLimit("t1", cfg, "execute")
		require.True(t, d.Allowed, "request %d should pass", i)
	}

	d := rl.CheckLimit("t1", cfg, "execute")
	require.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 2, d.Limit)
	assert.Equal(t, clock.t.Add(time.Minute), d.ResetTime)
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(WithClock(clock.now))
	cfg := limitedTenant(60, 0) // one token per second

	for i := 0; i < 60; i++ {
		require.True(t, rl.CheckLimit("t1", cfg, "execute").Allowed)
	}
	require.False(t, rl.CheckLimit("t1", cfg, "execute").Allowed)

	clock.advance(2 * time.Second)
	d := rl.CheckLimit("t1", cfg, "execute")
	assert.True(t, d.Allowed, "refill should restore tokens")
}

func TestRateLimiter_UnlimitedTenant(t *testing.T) {
	rl := NewRateLimiter()
	cfg := TenantConfig{TenantID: "t1", Status: TenantActive}

	for i := 0; i < 500; i++ {
		d := rl.CheckLimit("t1", cfg, "execute")
		require.True(t, d.Allowed)
		assert.Equal(t, -1, d.Remaining)
	}
}

func TestRateLimiter_TenantsIsolated(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(WithClock(clock.now))
	cfg := limitedTenant(1, 0)

	require.True(t, rl.CheckLimit("a", cfg, "execute").Allowed)
	require.False(t, rl.CheckLimit("a", cfg, "execute").Allowed)
	assert.True(t, rl.CheckLimit("b", cfg, "execute").Allowed, "tenant b has its own bucket")
}

func TestRateLimiter_WindowCounterRolls(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(WithClock(clock.now))
	cfg := limitedTenant(10, 0)

	for i := 1; i <= 3; i++ {
		d := rl.CheckLimit("t1", cfg, "execute")
		assert.Equal(t, i, d.Current)
	}

	clock.advance(61 * time.Second)
	d := rl.CheckLimit("t1", cfg, "execute")
	assert.Equal(t, 1, d.Current, "window counter should reset")
}

func TestRateLimiter_Reset(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(WithClock(clock.now))
	cfg := limitedTenant(1, 0)

	require.True(t, rl.CheckLimit("t1", cfg, "execute").Allowed)
	require.False(t, rl.CheckLimit("t1", cfg, "execute").Allowed)

	rl.Reset("t1")
	assert.True(t, rl.CheckLimit("t1", cfg, "execute").Allowed)
}

func TestRateLimiter_DefaultWindowOverride(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(WithClock(clock.now), WithDefaultWindow(10*time.Second))
	cfg := limitedTenant(1, 0)
	cfg.Limits.Window = 0

	require.True(t, rl.CheckLimit("t1", cfg, "execute").Allowed)
	require.False(t, rl.CheckLimit("t1", cfg, "execute").Allowed)

	// A full token refills over the shortened window.
	clock.advance(10 * time.Second)
	assert.True(t, rl.CheckLimit("t1", cfg, "execute").Allowed)
}
