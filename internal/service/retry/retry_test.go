package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/models"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newExecutor(clk *fakeClock) *Executor {
	return New(Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0, // deterministic delays
	}, WithClock(clk))
}

func TestSuccessFirstAttempt(t *testing.T) {
	clk := &fakeClock{}
	attempts, err := newExecutor(clk).Execute(context.Background(), "fetch", func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, clk.sleeps)
}

func TestTransientThenSuccess(t *testing.T) {
	clk := &fakeClock{}
	calls := 0
	attempts, err := newExecutor(clk).Execute(context.Background(), "fetch", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("connect: %w", errors.New("refused"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.sleeps)
}

func TestExhaustedBudget(t *testing.T) {
	clk := &fakeClock{}
	boom := errors.New("boom")
	attempts, err := newExecutor(clk).Execute(context.Background(), "fetch", func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
	assert.Len(t, clk.sleeps, 2, "no sleep after the final attempt")
}

func TestFatalStopsImmediately(t *testing.T) {
	clk := &fakeClock{}
	calls := 0
	attempts, err := newExecutor(clk).Execute(context.Background(), "fetch", func(context.Context) error {
		calls++
		return &models.RequestError{Exchange: "binance", Reason: "unknown symbol"}
	})
	var reqErr *models.RequestError
	assert.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clk.sleeps)
}

func TestRateLimitStatusIsRetried(t *testing.T) {
	clk := &fakeClock{}
	calls := 0
	attempts, err := newExecutor(clk).Execute(context.Background(), "fetch", func(context.Context) error {
		calls++
		if calls == 1 {
			return &models.StatusError{Exchange: "binance", Code: 429}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestClientErrorIsFatal(t *testing.T) {
	clk := &fakeClock{}
	_, err := newExecutor(clk).Execute(context.Background(), "fetch", func(context.Context) error {
		return &models.StatusError{Exchange: "binance", Code: 404}
	})
	var stErr *models.StatusError
	require.ErrorAs(t, err, &stErr)
	assert.Empty(t, clk.sleeps)
}

func TestServerErrorIsRetried(t *testing.T) {
	clk := &fakeClock{}
	attempts, _ := newExecutor(clk).Execute(context.Background(), "fetch", func(context.Context) error {
		return &models.StatusError{Exchange: "binance", Code: 503}
	})
	assert.Equal(t, 3, attempts)
}

func TestContextCancellationStopsRetrying(t *testing.T) {
	clk := &fakeClock{}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := newExecutor(clk).Execute(ctx, "fetch", func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDelayCappedAtMax(t *testing.T) {
	clk := &fakeClock{}
	e := New(Policy{
		MaxAttempts: 6,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
		Jitter:      0,
	}, WithClock(clk))

	_, _ = e.Execute(context.Background(), "fetch", func(context.Context) error {
		return errors.New("transient")
	})
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second,
	}, clk.sleeps)
}

// lockedClock is a fakeClock that tolerates concurrent sleepers.
type lockedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *lockedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *lockedClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func TestConcurrentExecuteSharesJitterSource(t *testing.T) {
	e := New(Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.5,
	}, WithClock(&lockedClock{}))

	const workers = 8
	attempts := make([]int, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempts[i], errs[i] = e.Execute(context.Background(), "fetch", func(context.Context) error {
				return errors.New("transient")
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		assert.Error(t, errs[i])
		assert.Equal(t, 3, attempts[i])
	}
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsRateLimit(models.ErrRateLimited))
	assert.True(t, IsRateLimit(fmt.Errorf("call: %w", models.ErrRateLimited)))
	assert.True(t, IsRateLimit(&models.StatusError{Code: 429}))
	assert.True(t, IsRateLimit(&models.StatusError{Code: 418}))
	assert.False(t, IsRateLimit(&models.StatusError{Code: 500}))

	assert.True(t, IsFatal(&models.RequestError{Reason: "bad params"}))
	assert.True(t, IsFatal(&models.StatusError{Code: 400}))
	assert.False(t, IsFatal(&models.StatusError{Code: 429}))
	assert.False(t, IsFatal(&models.StatusError{Code: 502}))
	assert.False(t, IsFatal(errors.New("dial tcp: timeout")))
}
