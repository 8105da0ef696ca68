package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CandlePull/internal/domain/models"
	drepo "CandlePull/internal/domain/repository"
	"CandlePull/internal/service/catalog"
	"CandlePull/pkg/cache"
	"CandlePull/pkg/logger"
)

// SessionConfig describes one acquisition session.
type SessionConfig struct {
	// Exchanges in canonical preference order. Symbols listed on several
	// venues are fetched from the first one here that offers them.
	Exchanges []string

	// Timeframes to acquire, most urgent first.
	Timeframes []string

	// Symbols restricts the run to an explicit subset. Empty means every
	// symbol the resolver yields.
	Symbols []string

	// CatalogTTL bounds how long a venue's symbol listing is reused from
	// the session cache.
	CatalogTTL time.Duration
}

// Session builds the work list for a run: it loads each venue's symbol
// catalog (through the session cache), resolves canonical assignments, and
// expands symbols x timeframes into fetch tasks for the scheduler.
type Session struct {
	cfg       SessionConfig
	providers map[string]drepo.CatalogProvider
	catCache  cache.Service
	sched     *Scheduler
	log       *logger.Logger
}

// NewSession wires a session. catCache may be nil to disable catalog caching.
func NewSession(
	cfg SessionConfig,
	providers []drepo.CatalogProvider,
	catCache cache.Service,
	sched *Scheduler,
	log *logger.Logger,
) *Session {
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = 15 * time.Minute
	}
	byEx := make(map[string]drepo.CatalogProvider, len(providers))
	for _, p := range providers {
		byEx[p.Exchange()] = p
	}
	return &Session{
		cfg:       cfg,
		providers: byEx,
		catCache:  catCache,
		sched:     sched,
		log:       log,
	}
}

// RunOverrides adjust one run without touching the session config.
type RunOverrides struct {
	Force   bool
	Symbols []string
}

// Run builds the task list and executes it.
func (s *Session) Run(ctx context.Context) (*models.Report, error) {
	return s.RunWith(ctx, RunOverrides{})
}

// RunWith is Run with per-invocation overrides, e.g. a forced refresh for a
// symbol subset triggered over the ops API.
func (s *Session) RunWith(ctx context.Context, ov RunOverrides) (*models.Report, error) {
	symbols := s.cfg.Symbols
	if len(ov.Symbols) > 0 {
		symbols = ov.Symbols
	}
	tasks, err := s.buildTasks(ctx, symbols)
	if err != nil {
		return nil, err
	}

	policy := s.sched.cfg.Staleness
	policy.Force = policy.Force || ov.Force
	return s.sched.RunWithPolicy(ctx, tasks, policy)
}

// BuildTasks resolves catalogs into one task per symbol, timeframe pair.
// Venues whose catalog cannot be loaded are treated as unavailable for this
// session; their symbols fall back to alternates where possible.
func (s *Session) BuildTasks(ctx context.Context) ([]models.FetchTask, error) {
	return s.buildTasks(ctx, s.cfg.Symbols)
}

func (s *Session) buildTasks(ctx context.Context, symbols []string) ([]models.FetchTask, error) {
	catalogs := make(map[string][]models.CatalogSymbol)
	unavailable := make(map[string]bool)

	for _, ex := range s.cfg.Exchanges {
		provider, ok := s.providers[ex]
		if !ok {
			unavailable[ex] = true
			continue
		}
		listing, err := s.loadCatalog(ctx, provider)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			unavailable[ex] = true
			if s.log != nil {
				s.log.Warn("catalog unavailable for session",
					logger.String("exchange", ex),
					logger.Error(err))
			}
			continue
		}
		catalogs[ex] = listing
	}
	if len(catalogs) == 0 {
		return nil, fmt.Errorf("no exchange catalog available")
	}

	res := catalog.Resolve(catalogs, s.cfg.Exchanges)

	wanted := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		wanted[sym] = true
	}

	var tasks []models.FetchTask
	for _, sym := range res.Symbols() {
		if len(wanted) > 0 && !wanted[sym] {
			continue
		}
		ex := catalog.EffectiveExchange(res.Entries[sym], s.cfg.Exchanges, unavailable)
		if ex == "" {
			continue
		}
		for i, tf := range s.cfg.Timeframes {
			tasks = append(tasks, models.FetchTask{
				Exchange:  ex,
				Symbol:    sym,
				Timeframe: string(drepo.NormalizeTimeframe(tf)),
				Priority:  len(s.cfg.Timeframes) - i,
			})
		}
	}

	if s.log != nil {
		s.log.Info("work list built",
			logger.Int("symbols", len(res.Entries)),
			logger.Int("tasks", len(tasks)),
			logger.Int("unavailable_exchanges", len(unavailable)))
	}
	return tasks, nil
}

// loadCatalog reads a venue listing through the session cache.
func (s *Session) loadCatalog(ctx context.Context, p drepo.CatalogProvider) ([]models.CatalogSymbol, error) {
	key := cache.GenerateKey("catalog", p.Exchange())

	if s.catCache != nil {
		var cached []models.CatalogSymbol
		if err := s.catCache.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	listing, err := p.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	if s.catCache != nil {
		if cerr := s.catCache.Set(ctx, key, listing, s.cfg.CatalogTTL); cerr != nil && s.log != nil {
			s.log.Debug("catalog cache write failed",
				logger.String("exchange", p.Exchange()),
				logger.Error(cerr))
		}
	}
	return listing, nil
}
