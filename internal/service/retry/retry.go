package retry

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
	"CandlePull/pkg/logger"
)

// Policy controls the retry schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction of the computed delay randomized away, in
	// [0, 1). 0.2 means each delay lands in [0.8d, d].
	Jitter float64
}

// DefaultPolicy retries up to 3 times with 1s..30s exponential delays.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

func (p *Policy) normalize() {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = d.MaxDelay
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = d.Jitter
	}
}

// IsFatal reports whether err should never be retried: malformed requests and
// client-side rejections other than rate limiting.
func IsFatal(err error) bool {
	var reqErr *models.RequestError
	if errors.As(err, &reqErr) {
		return true
	}
	var stErr *models.StatusError
	if errors.As(err, &stErr) {
		return stErr.Code >= 400 && stErr.Code < 500 && !stErr.IsRateLimitStatus()
	}
	return false
}

// IsRateLimit reports whether err is a venue push-back.
func IsRateLimit(err error) bool {
	if errors.Is(err, models.ErrRateLimited) {
		return true
	}
	var stErr *models.StatusError
	return errors.As(err, &stErr) && stErr.IsRateLimitStatus()
}

// Executor runs operations under a retry policy. Safe for concurrent use;
// scheduler workers share one instance.
type Executor struct {
	policy Policy
	clock  repository.Clock
	log    *logger.Logger

	rndMu sync.Mutex // rand.Rand is not goroutine-safe
	rnd   *rand.Rand
}

// Option configures an Executor.
type Option func(*Executor)

func WithClock(c repository.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// New builds an executor.
func New(policy Policy, opts ...Option) *Executor {
	policy.normalize()
	e := &Executor{
		policy: policy,
		clock:  repository.RealClock{},
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op until it succeeds, fails fatally, exhausts the attempt
// budget, or ctx is canceled. Returns the number of attempts made and the
// last error. Fatal errors stop on first occurrence without sleeping.
func (e *Executor) Execute(ctx context.Context, name string, op func(ctx context.Context) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return attempt, lastErr
		}
		if IsFatal(lastErr) {
			if e.log != nil {
				e.log.Warn("operation failed fatally",
					logger.String("op", name),
					logger.Int("attempt", attempt),
					logger.Error(lastErr))
			}
			return attempt, lastErr
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.delay(attempt)
		if e.log != nil {
			e.log.Debug("retrying operation",
				logger.String("op", name),
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Error(lastErr))
		}
		if err := e.clock.Sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}

	if e.log != nil {
		e.log.Warn("retry budget exhausted",
			logger.String("op", name),
			logger.Int("attempts", e.policy.MaxAttempts),
			logger.Error(lastErr))
	}
	return e.policy.MaxAttempts, lastErr
}

// delay computes the backoff for the given attempt (1-based), doubling each
// time, capped, minus a random jitter slice.
func (e *Executor) delay(attempt int) time.Duration {
	d := e.policy.BaseDelay << (attempt - 1)
	if d > e.policy.MaxDelay || d <= 0 {
		d = e.policy.MaxDelay
	}
	if e.policy.Jitter > 0 {
		e.rndMu.Lock()
		f := e.rnd.Float64()
		e.rndMu.Unlock()
		d -= time.Duration(f * e.policy.Jitter * float64(d))
	}
	return d
}
