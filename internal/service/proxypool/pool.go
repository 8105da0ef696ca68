package proxypool

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"CandlePull/internal/domain/repository"
	"CandlePull/pkg/logger"
)

// State is the lifecycle state of a pool entry.
type State int

const (
	StateAvailable State = iota
	StateCooling
	StateBanned
)

func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateCooling:
		return "cooling"
	case StateBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// FailureKind distinguishes why a proxy call failed.
type FailureKind int

const (
	FailureConnect FailureKind = iota
	FailureRateLimited
	FailureValidation
)

// proxyRecord tracks one outbound identity and its health. Mutated only
// through ReportSuccess/ReportFailure under the pool lock.
type proxyRecord struct {
	id            string
	proxyURL      string
	state         State
	failures      int // consecutive failures
	successes     int64
	totalFailures int64
	cooldowns     int // completed cooldown cycles
	cooldownUntil time.Time
	lastUsed      time.Time
}

// Handle is what callers hold between Acquire and the matching report call.
type Handle struct {
	record *proxyRecord
}

// URL returns the proxy URL to route the request through.
func (h *Handle) URL() string {
	if h == nil || h.record == nil {
		return ""
	}
	return h.record.proxyURL
}

// PoolStats is a point-in-time summary of pool health.
type PoolStats struct {
	Available int
	Cooling   int
	Banned    int
}

// Config controls failure thresholds and cooldown growth.
type Config struct {
	FailureThreshold int           // consecutive failures before cooling down
	BaseCooldown     time.Duration // first cooldown window
	MaxCooldown      time.Duration // cap for the exponential window
	BanAfterCycles   int           // cooldown cycles before a permanent ban
}

// DefaultConfig mirrors the thresholds the acquisition pipeline has been
// running with: 5 strikes, 30s base cooldown doubling up to 10m, ban after 3
// cooldown cycles.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		BaseCooldown:     30 * time.Second,
		MaxCooldown:      10 * time.Minute,
		BanAfterCycles:   3,
	}
}

// Pool manages outbound network identities. Round-robin among available
// entries; no network calls originate here, health is inferred purely from
// the success/failure reports of callers.
type Pool struct {
	mu      sync.Mutex
	records []*proxyRecord
	next    int
	cfg     Config
	clock   repository.Clock
	metrics repository.Metrics
	log     *logger.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock overrides the clock (tests).
func WithClock(c repository.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

// WithMetrics wires pool health gauges.
func WithMetrics(m repository.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithLogger sets the pool logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// New builds a pool from proxy URLs. Malformed URLs are skipped.
func New(cfg Config, proxyURLs []string, opts ...Option) *Pool {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.BaseCooldown <= 0 {
		cfg.BaseCooldown = DefaultConfig().BaseCooldown
	}
	if cfg.MaxCooldown < cfg.BaseCooldown {
		cfg.MaxCooldown = DefaultConfig().MaxCooldown
	}
	if cfg.BanAfterCycles <= 0 {
		cfg.BanAfterCycles = DefaultConfig().BanAfterCycles
	}

	p := &Pool{cfg: cfg, clock: repository.RealClock{}}
	for _, opt := range opts {
		opt(p)
	}

	for _, raw := range proxyURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			if p.log != nil {
				p.log.Warn("skipping malformed proxy url", logger.String("url", raw))
			}
			continue
		}
		p.records = append(p.records, &proxyRecord{
			id:       u.Host,
			proxyURL: raw,
			state:    StateAvailable,
		})
	}
	return p
}

// Acquire returns the next available proxy round-robin, or (nil, false) when
// the pool is empty or exhausted; callers then use a direct connection.
func (p *Pool) Acquire() (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	p.sweepLocked(now)

	n := len(p.records)
	for i := 0; i < n; i++ {
		rec := p.records[(p.next+i)%n]
		if rec.state != StateAvailable {
			continue
		}
		p.next = (p.next + i + 1) % n
		rec.lastUsed = now
		return &Handle{record: rec}, true
	}
	return nil, false
}

// ReportSuccess resets the consecutive-failure counter for the entry.
func (p *Pool) ReportSuccess(h *Handle) {
	if h == nil || h.record == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	h.record.failures = 0
	h.record.successes++
	p.publishStatsLocked()
}

// ReportFailure counts one failure. Hitting the threshold moves the entry
// into cooling-down with an exponentially growing window; repeated cooldown
// cycles ban it for the rest of the session. Validation failures that keep
// recurring remove the entry outright.
func (p *Pool) ReportFailure(h *Handle, kind FailureKind) {
	if h == nil || h.record == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := h.record
	rec.failures++
	rec.totalFailures++

	if rec.failures < p.cfg.FailureThreshold {
		return
	}

	if rec.cooldowns >= p.cfg.BanAfterCycles {
		rec.state = StateBanned
		if p.log != nil {
			p.log.Warn("proxy banned for session",
				logger.String("proxy", rec.id),
				logger.Int("cooldown_cycles", rec.cooldowns))
		}
		if kind == FailureValidation {
			p.removeLocked(rec)
		}
		p.publishStatsLocked()
		return
	}

	window := p.cfg.BaseCooldown << rec.cooldowns
	if window > p.cfg.MaxCooldown {
		window = p.cfg.MaxCooldown
	}
	rec.state = StateCooling
	rec.cooldownUntil = p.clock.Now().Add(window)
	rec.cooldowns++
	rec.failures = 0
	if p.log != nil {
		p.log.Debug("proxy cooling down",
			logger.String("proxy", rec.id),
			logger.Duration("window", window))
	}
	p.publishStatsLocked()
}

// Sweep re-admits entries whose cooldown expired. The scheduler calls this
// between batches; Acquire also sweeps lazily.
func (p *Pool) Sweep(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked(now)
	p.publishStatsLocked()
}

func (p *Pool) sweepLocked(now time.Time) {
	for _, rec := range p.records {
		if rec.state == StateCooling && now.After(rec.cooldownUntil) {
			rec.state = StateAvailable
			rec.failures = 0
		}
	}
}

func (p *Pool) removeLocked(dead *proxyRecord) {
	for i, rec := range p.records {
		if rec == dead {
			p.records = append(p.records[:i], p.records[i+1:]...)
			if p.next > i {
				p.next--
			}
			return
		}
	}
}

// Len returns the number of entries still in rotation (any state).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Stats returns a snapshot of pool health.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() PoolStats {
	var s PoolStats
	for _, rec := range p.records {
		switch rec.state {
		case StateAvailable:
			s.Available++
		case StateCooling:
			s.Cooling++
		case StateBanned:
			s.Banned++
		}
	}
	return s
}

func (p *Pool) publishStatsLocked() {
	if p.metrics == nil {
		return
	}
	s := p.statsLocked()
	p.metrics.RecordProxyPool(s.Available, s.Cooling, s.Banned)
}

// String implements fmt.Stringer for debug logs.
func (p *Pool) String() string {
	s := p.Stats()
	return fmt.Sprintf("proxypool(available=%d cooling=%d banned=%d)", s.Available, s.Cooling, s.Banned)
}
