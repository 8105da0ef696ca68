package proxypool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestPool(t *testing.T, urls []string) (*Pool, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cfg := Config{
		FailureThreshold: 3,
		BaseCooldown:     30 * time.Second,
		MaxCooldown:      5 * time.Minute,
		BanAfterCycles:   2,
	}
	return New(cfg, urls, WithClock(clk)), clk
}

func TestAcquireRoundRobin(t *testing.T) {
	pool, _ := newTestPool(t, []string{
		"http://10.0.0.1:8080",
		"http://10.0.0.2:8080",
		"http://10.0.0.3:8080",
	})

	var seen []string
	for i := 0; i < 6; i++ {
		h, ok := pool.Acquire()
		require.True(t, ok)
		seen = append(seen, h.URL())
	}

	assert.Equal(t, seen[0], seen[3])
	assert.Equal(t, seen[1], seen[4])
	assert.Equal(t, seen[2], seen[5])
	assert.NotEqual(t, seen[0], seen[1])
	assert.NotEqual(t, seen[1], seen[2])
}

func TestEmptyPoolAcquire(t *testing.T) {
	pool, _ := newTestPool(t, nil)
	h, ok := pool.Acquire()
	assert.False(t, ok)
	assert.Nil(t, h)
}

func TestMalformedURLsSkipped(t *testing.T) {
	pool, _ := newTestPool(t, []string{"http://10.0.0.1:8080", "://broken", ""})
	assert.Equal(t, 1, pool.Len())
}

func TestConsecutiveFailuresTriggerCooldown(t *testing.T) {
	pool, clk := newTestPool(t, []string{"http://10.0.0.1:8080"})

	h, ok := pool.Acquire()
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		pool.ReportFailure(h, FailureConnect)
	}

	// cooling entry must not be handed out again
	_, ok = pool.Acquire()
	assert.False(t, ok)
	assert.Equal(t, PoolStats{Cooling: 1}, pool.Stats())

	// cooldown expiry re-admits exactly that entry
	clk.advance(31 * time.Second)
	h2, ok := pool.Acquire()
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.1:8080", h2.URL())
	assert.Equal(t, PoolStats{Available: 1}, pool.Stats())
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	pool, _ := newTestPool(t, []string{"http://10.0.0.1:8080"})

	h, _ := pool.Acquire()
	pool.ReportFailure(h, FailureConnect)
	pool.ReportFailure(h, FailureConnect)
	pool.ReportSuccess(h)
	pool.ReportFailure(h, FailureConnect)
	pool.ReportFailure(h, FailureConnect)

	// streak never reached the threshold of 3
	_, ok := pool.Acquire()
	assert.True(t, ok)
}

func TestCooldownGrowsThenBans(t *testing.T) {
	pool, clk := newTestPool(t, []string{"http://10.0.0.1:8080"})

	// first cycle: 30s window
	h, _ := pool.Acquire()
	for i := 0; i < 3; i++ {
		pool.ReportFailure(h, FailureConnect)
	}
	clk.advance(29 * time.Second)
	_, ok := pool.Acquire()
	require.False(t, ok, "still cooling inside the first window")
	clk.advance(2 * time.Second)

	// second cycle: 60s window
	h, ok = pool.Acquire()
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		pool.ReportFailure(h, FailureConnect)
	}
	clk.advance(31 * time.Second)
	_, ok = pool.Acquire()
	require.False(t, ok, "second window doubles to 60s")
	clk.advance(30 * time.Second)

	// third threshold hit: two cycles already served, entry is banned
	h, ok = pool.Acquire()
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		pool.ReportFailure(h, FailureConnect)
	}
	assert.Equal(t, PoolStats{Banned: 1}, pool.Stats())

	clk.advance(time.Hour)
	_, ok = pool.Acquire()
	assert.False(t, ok, "banned entries never return")
}

func TestValidationFailureRemovesBannedEntry(t *testing.T) {
	pool, clk := newTestPool(t, []string{"http://10.0.0.1:8080", "http://10.0.0.2:8080"})

	h, _ := pool.Acquire()
	for cycle := 0; cycle < 2; cycle++ {
		for i := 0; i < 3; i++ {
			pool.ReportFailure(h, FailureValidation)
		}
		clk.advance(5 * time.Minute)
		pool.Sweep(clk.Now())
		got, ok := pool.Acquire()
		require.True(t, ok)
		for got.URL() != h.URL() {
			got, ok = pool.Acquire()
			require.True(t, ok)
		}
		h = got
	}
	for i := 0; i < 3; i++ {
		pool.ReportFailure(h, FailureValidation)
	}

	assert.Equal(t, 1, pool.Len())
}

func TestSweepReadmitsExpiredCooldowns(t *testing.T) {
	pool, clk := newTestPool(t, []string{"http://10.0.0.1:8080", "http://10.0.0.2:8080"})

	h, _ := pool.Acquire()
	for i := 0; i < 3; i++ {
		pool.ReportFailure(h, FailureRateLimited)
	}
	assert.Equal(t, PoolStats{Available: 1, Cooling: 1}, pool.Stats())

	pool.Sweep(clk.Now().Add(time.Minute))
	assert.Equal(t, PoolStats{Available: 2}, pool.Stats())
}
