package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
	"CandlePull/pkg/logger"
)

// Config describes one exchange's request quota.
type Config struct {
	// Primary sliding window: at most MaxRequests calls in any Period.
	MaxRequests int
	Period      time.Duration

	// Optional secondary window for venues with an additional hourly cap.
	// Zero SecondaryMax disables it.
	SecondaryMax    int
	SecondaryPeriod time.Duration

	// Minimum spacing between two requests for the same symbol. Zero
	// disables per-symbol pacing.
	SymbolGap time.Duration

	// Random extra delay in [0, SymbolJitter) added on top of SymbolGap.
	SymbolJitter time.Duration

	// Backoff growth after a rate-limit signal and its ceiling.
	BackoffFactor float64
	BackoffMax    float64

	// Consecutive successes required before the backoff multiplier steps
	// back down one factor.
	RecoveryStreak int
}

// DefaultConfig is a conservative quota for venues without a published one.
func DefaultConfig() Config {
	return Config{
		MaxRequests:    60,
		Period:         time.Minute,
		BackoffFactor:  2.0,
		BackoffMax:     8.0,
		RecoveryStreak: 10,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.MaxRequests <= 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Period <= 0 {
		c.Period = d.Period
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.BackoffMax < c.BackoffFactor {
		c.BackoffMax = d.BackoffMax
	}
	if c.RecoveryStreak <= 0 {
		c.RecoveryStreak = d.RecoveryStreak
	}
	if c.SecondaryMax > 0 && c.SecondaryPeriod <= 0 {
		c.SecondaryPeriod = time.Hour
	}
}

// Limiter throttles outbound calls for one exchange. A sliding window of
// request timestamps enforces the hard quota; a dynamic backoff multiplier
// stretches the pace after the venue pushes back. The lock is never held
// while sleeping.
type Limiter struct {
	mu        sync.Mutex
	cfg       Config
	stamps    []time.Time // primary window, oldest first
	secondary []time.Time
	perSymbol map[string]time.Time // last request per symbol

	backoff   float64
	successes int // consecutive successes since last rate-limit signal

	exchange string
	clock    repository.Clock
	observer repository.RateLimitObserver
	metrics  repository.Metrics
	log      *logger.Logger
	rnd      *rand.Rand
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithClock(c repository.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func WithObserver(o repository.RateLimitObserver) Option {
	return func(l *Limiter) { l.observer = o }
}

func WithMetrics(m repository.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func WithLogger(lg *logger.Logger) Option {
	return func(l *Limiter) { l.log = lg }
}

// New builds a limiter for one exchange.
func New(exchange string, cfg Config, opts ...Option) *Limiter {
	cfg.normalize()
	l := &Limiter{
		cfg:       cfg,
		exchange:  exchange,
		perSymbol: make(map[string]time.Time),
		backoff:   1.0,
		clock:     repository.RealClock{},
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForSlot blocks until a request for symbol may go out, then records the
// slot. Returns early with ctx.Err() on cancellation; in that case no slot is
// consumed.
func (l *Limiter) WaitForSlot(ctx context.Context, symbol string) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.pruneLocked(now)

		wait := l.waitLocked(now, symbol)
		if wait <= 0 {
			l.stamps = append(l.stamps, now)
			if l.cfg.SecondaryMax > 0 {
				l.secondary = append(l.secondary, now)
			}
			if l.cfg.SymbolGap > 0 && symbol != "" {
				l.perSymbol[symbol] = now
			}
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// waitLocked computes how long the caller must wait before a slot opens.
func (l *Limiter) waitLocked(now time.Time, symbol string) time.Duration {
	var wait time.Duration

	// primary window full: wait for the oldest stamp to age out
	if len(l.stamps) >= l.cfg.MaxRequests {
		if d := l.stamps[0].Add(l.cfg.Period).Sub(now); d > wait {
			wait = d
		}
	}

	// secondary window
	if l.cfg.SecondaryMax > 0 && len(l.secondary) >= l.cfg.SecondaryMax {
		if d := l.secondary[0].Add(l.cfg.SecondaryPeriod).Sub(now); d > wait {
			wait = d
		}
	}

	// backoff stretches the minimum spacing between any two requests
	if l.backoff > 1 && len(l.stamps) > 0 {
		gap := time.Duration(float64(l.cfg.Period) / float64(l.cfg.MaxRequests) * l.backoff)
		if d := l.stamps[len(l.stamps)-1].Add(gap).Sub(now); d > wait {
			wait = d
		}
	}

	// per-symbol pacing with jitter
	if l.cfg.SymbolGap > 0 && symbol != "" {
		if last, ok := l.perSymbol[symbol]; ok {
			gap := l.cfg.SymbolGap
			if l.cfg.SymbolJitter > 0 {
				gap += time.Duration(l.rnd.Int63n(int64(l.cfg.SymbolJitter)))
			}
			if d := last.Add(gap).Sub(now); d > wait {
				wait = d
			}
		}
	}

	return wait
}

func (l *Limiter) pruneLocked(now time.Time) {
	cut := now.Add(-l.cfg.Period)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cut) {
		i++
	}
	l.stamps = l.stamps[i:]

	if l.cfg.SecondaryMax > 0 {
		cut = now.Add(-l.cfg.SecondaryPeriod)
		i = 0
		for i < len(l.secondary) && !l.secondary[i].After(cut) {
			i++
		}
		l.secondary = l.secondary[i:]
	}
}

// OnRateLimited records a push-back from the venue: the backoff multiplier
// grows by BackoffFactor up to BackoffMax and the observer is notified.
func (l *Limiter) OnRateLimited() {
	l.mu.Lock()
	l.successes = 0
	l.backoff *= l.cfg.BackoffFactor
	if l.backoff > l.cfg.BackoffMax {
		l.backoff = l.cfg.BackoffMax
	}
	backoff := l.backoff
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.RecordRateLimited(l.exchange)
	}
	if l.log != nil {
		l.log.Warn("rate limited by venue",
			logger.String("exchange", l.exchange),
			logger.Any("backoff", backoff))
	}
	if l.observer != nil {
		l.observer.OnLimited(l.exchange)
	}
}

// OnSuccess counts a completed request. After RecoveryStreak consecutive
// successes the backoff multiplier steps back down one factor.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backoff <= 1 {
		return
	}
	l.successes++
	if l.successes < l.cfg.RecoveryStreak {
		return
	}
	l.successes = 0
	l.backoff /= l.cfg.BackoffFactor
	if l.backoff < 1 {
		l.backoff = 1
	}
}

// Adjust adopts a quota the venue reported in response headers. Shrinking
// quotas apply immediately; a reported reset moment clears the primary window
// once it passes. Zero-valued hints are ignored.
func (l *Limiter) Adjust(hint models.RateLimitHint) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if hint.Limit > 0 && hint.Limit != l.cfg.MaxRequests {
		if l.log != nil {
			l.log.Debug("venue adjusted request quota",
				logger.String("exchange", l.exchange),
				logger.Int("limit", hint.Limit))
		}
		l.cfg.MaxRequests = hint.Limit
	}
	if !hint.Reset.IsZero() && !l.clock.Now().Before(hint.Reset) {
		l.stamps = l.stamps[:0]
	}
}

// Backoff returns the current multiplier (1.0 when not backing off).
func (l *Limiter) Backoff() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// Pending returns how many stamps sit in the primary window right now.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.clock.Now())
	return len(l.stamps)
}
