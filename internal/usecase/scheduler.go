package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"CandlePull/internal/domain/models"
	drepo "CandlePull/internal/domain/repository"
	"CandlePull/internal/service/proxypool"
	"CandlePull/internal/service/ratelimit"
	"CandlePull/internal/service/retry"
	"CandlePull/internal/service/staleness"
	"CandlePull/pkg/logger"
	"CandlePull/pkg/queue"
)

// ProgressSink receives task completion events, e.g. the dashboard feed.
type ProgressSink interface {
	Publish(ev models.ProgressEvent)
}

// SchedulerConfig tunes the acquisition run.
type SchedulerConfig struct {
	// Concurrency bounds the worker pool.
	Concurrency int

	// Lookback is the fetch depth for keys never seen before.
	Lookback time.Duration

	// Staleness is the freshness policy applied to every task.
	Staleness staleness.Policy
}

// DefaultSchedulerConfig runs a dozen workers with a 30 day cold-start
// lookback.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Concurrency: 12,
		Lookback:    30 * 24 * time.Hour,
	}
}

// Scheduler drives one acquisition run: it filters stale keys, dispatches
// fetch tasks to a bounded worker pool, and aggregates outcomes. Task
// failures never abort the run.
type Scheduler struct {
	cfg       SchedulerConfig
	sources   map[string]drepo.CandleSource
	store     drepo.CandleStore
	meta      drepo.MetaStore
	limiters  *ratelimit.Registry
	pool      *proxypool.Pool
	retrier   *retry.Executor
	publisher drepo.ReportPublisher
	progress  ProgressSink
	metrics   drepo.Metrics
	clock     drepo.Clock
	log       *logger.Logger
}

// SchedulerOption configures optional collaborators.
type SchedulerOption func(*Scheduler)

func WithPublisher(p drepo.ReportPublisher) SchedulerOption {
	return func(s *Scheduler) { s.publisher = p }
}

func WithProgress(p ProgressSink) SchedulerOption {
	return func(s *Scheduler) { s.progress = p }
}

func WithMetrics(m drepo.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

func WithClock(c drepo.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l *logger.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// NewScheduler creates a scheduler over the given exchange sources.
func NewScheduler(
	cfg SchedulerConfig,
	sources []drepo.CandleSource,
	store drepo.CandleStore,
	meta drepo.MetaStore,
	limiters *ratelimit.Registry,
	pool *proxypool.Pool,
	retrier *retry.Executor,
	opts ...SchedulerOption,
) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultSchedulerConfig().Concurrency
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultSchedulerConfig().Lookback
	}

	bySrc := make(map[string]drepo.CandleSource, len(sources))
	for _, src := range sources {
		bySrc[src.Exchange()] = src
	}

	s := &Scheduler{
		cfg:      cfg,
		sources:  bySrc,
		store:    store,
		meta:     meta,
		limiters: limiters,
		pool:     pool,
		retrier:  retrier,
		clock:    drepo.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes tasks with bounded concurrency and returns the aggregate
// report. Tasks sharing a symbol+timeframe key are deduplicated so each key
// is fetched at most once per run. On cancellation the report covers the
// tasks that completed before the signal.
func (s *Scheduler) Run(ctx context.Context, tasks []models.FetchTask) (*models.Report, error) {
	return s.RunWithPolicy(ctx, tasks, s.cfg.Staleness)
}

// RunWithPolicy is Run with a per-run freshness policy, e.g. a forced
// refresh triggered from the ops API.
func (s *Scheduler) RunWithPolicy(ctx context.Context, tasks []models.FetchTask, policy staleness.Policy) (*models.Report, error) {
	started := s.clock.Now()

	deduped := dedupe(tasks)
	q := queue.NewPriority[models.FetchTask]()
	for _, t := range deduped {
		q.Push(t, t.Priority)
	}
	total := q.Len()

	if s.log != nil {
		s.log.Info("acquisition run starting",
			logger.Int("tasks", total),
			logger.Int("deduped", len(tasks)-total),
			logger.Int("workers", s.cfg.Concurrency))
	}

	agg := newAggregator(started, total)
	var qmu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				qmu.Lock()
				task, ok := q.Pop()
				qmu.Unlock()
				if !ok {
					return nil
				}

				res := s.runTask(gctx, task, policy)

				// a task abandoned mid-flight by cancellation is not an
				// outcome; the report covers completed tasks only
				if res.Err != nil && (errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)) {
					return res.Err
				}

				done := agg.record(res)
				s.observe(res, done, total)
				s.pool.Sweep(s.clock.Now())
			}
		})
	}
	err := g.Wait()

	report := agg.report(s.clock.Now())
	if s.log != nil {
		s.log.Info("acquisition run finished",
			logger.Int("succeeded", report.Succeeded),
			logger.Int("failed", report.Failed),
			logger.Int("skipped_fresh", report.SkippedFresh),
			logger.Int64("rows", report.RowsWritten),
			logger.Duration("elapsed", report.Elapsed))
	}
	if s.publisher != nil {
		if perr := s.publisher.PublishReport(context.WithoutCancel(ctx), report); perr != nil && s.log != nil {
			s.log.Warn("report publish failed", logger.Error(perr))
		}
	}
	return report, err
}

// runTask performs the staleness check and, when needed, the retried fetch
// plus atomic store commit for one task.
func (s *Scheduler) runTask(ctx context.Context, task models.FetchTask, policy staleness.Policy) *models.FetchResult {
	start := s.clock.Now()
	res := &models.FetchResult{Task: task}

	tf := drepo.Timeframe(task.Timeframe)
	meta, err := s.meta.Get(ctx, task.Exchange, task.Symbol, tf)
	if err != nil && !errors.Is(err, models.ErrCacheMiss) {
		if s.log != nil {
			s.log.Warn("meta lookup failed, treating key as cold",
				logger.String("key", task.Key()),
				logger.Error(err))
		}
		meta = nil
	}

	if stale, _ := staleness.NeedsRefresh(meta, tf, policy, s.clock.Now()); !stale {
		res.Outcome = models.OutcomeSkippedFresh
		res.Elapsed = s.clock.Now().Sub(start)
		return res
	}

	source, ok := s.sources[task.Exchange]
	if !ok {
		res.Outcome = models.OutcomeFatal
		res.Err = &models.RequestError{Exchange: task.Exchange, Reason: "no source registered"}
		res.Elapsed = s.clock.Now().Sub(start)
		return res
	}

	since := task.Since
	if since.IsZero() {
		if next := staleness.NextSince(meta, tf); !next.IsZero() {
			since = next
		} else {
			since = s.clock.Now().Add(-s.cfg.Lookback)
		}
	}

	limiter := s.limiters.For(task.Exchange)
	var resp *drepo.FetchResponse

	attempts, err := s.retrier.Execute(ctx, task.Key(), func(ctx context.Context) error {
		if err := limiter.WaitForSlot(ctx, task.Symbol); err != nil {
			return err
		}

		handle, _ := s.pool.Acquire()
		req := drepo.FetchRequest{
			Symbol:    task.Symbol,
			Timeframe: tf,
			Since:     since,
			ProxyURL:  handle.URL(),
		}

		r, ferr := source.Fetch(ctx, req)
		if ferr != nil {
			switch {
			case retry.IsRateLimit(ferr):
				limiter.OnRateLimited()
				s.pool.ReportFailure(handle, proxypool.FailureRateLimited)
			case retry.IsFatal(ferr):
				// the transport worked, the request itself was rejected
				s.pool.ReportSuccess(handle)
			default:
				s.pool.ReportFailure(handle, proxypool.FailureConnect)
			}
			return ferr
		}

		s.pool.ReportSuccess(handle)
		limiter.OnSuccess()
		limiter.Adjust(r.Hint)
		resp = r
		return nil
	})
	res.Attempts = attempts

	if err != nil {
		if retry.IsFatal(err) {
			res.Outcome = models.OutcomeFatal
		} else {
			res.Outcome = models.OutcomeRetryExhausted
		}
		res.Err = err
		res.Elapsed = s.clock.Now().Sub(start)
		return res
	}

	batch := &models.CandleBatch{
		Exchange:  task.Exchange,
		Symbol:    task.Symbol,
		Timeframe: task.Timeframe,
		Rows:      resp.Candles,
		FetchedAt: s.clock.Now(),
	}
	committed, werr := s.store.WriteBatch(ctx, batch)
	if werr != nil {
		res.Outcome = models.OutcomeRetryExhausted
		res.Err = werr
		res.Elapsed = s.clock.Now().Sub(start)
		return res
	}
	// push the committed meta back through the meta store so a cached
	// staleness read sees the fresh fetch instead of waiting out its TTL
	if committed != nil {
		if perr := s.meta.Put(ctx, committed); perr != nil && s.log != nil {
			s.log.Warn("meta refresh failed",
				logger.String("key", task.Key()),
				logger.Error(perr))
		}
	}
	if s.publisher != nil && len(batch.Rows) > 0 {
		if perr := s.publisher.PublishBatch(ctx, batch); perr != nil && s.log != nil {
			s.log.Warn("batch publish failed",
				logger.String("key", task.Key()),
				logger.Error(perr))
		}
	}

	res.Outcome = models.OutcomeSuccess
	res.Rows = len(resp.Candles)
	res.Elapsed = s.clock.Now().Sub(start)
	return res
}

func (s *Scheduler) observe(res *models.FetchResult, done, total int) {
	if s.metrics != nil {
		s.metrics.RecordFetch(res.Task.Exchange, res.Outcome.String())
		s.metrics.RecordLatency("fetch_task", res.Elapsed.Seconds())
		if res.Outcome == models.OutcomeSuccess {
			s.metrics.RecordCandlesWritten(res.Task.Exchange, res.Rows)
		}
	}
	if s.progress != nil {
		s.progress.Publish(models.ProgressEvent{
			Exchange:  res.Task.Exchange,
			Symbol:    res.Task.Symbol,
			Timeframe: res.Task.Timeframe,
			Outcome:   res.Outcome.String(),
			Rows:      res.Rows,
			Done:      done,
			Total:     total,
		})
	}
	if res.Err != nil && s.log != nil {
		s.log.Warn("task failed",
			logger.String("key", res.Task.Key()),
			logger.String("outcome", res.Outcome.String()),
			logger.Int("attempts", res.Attempts),
			logger.Error(res.Err))
	}
}

// dedupe keeps one task per symbol+timeframe key. The highest priority wins;
// the earliest non-zero Since is preserved so no requested range is lost.
func dedupe(tasks []models.FetchTask) []models.FetchTask {
	byKey := make(map[string]models.FetchTask, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		key := t.Key()
		prev, seen := byKey[key]
		if !seen {
			byKey[key] = t
			order = append(order, key)
			continue
		}
		if t.Priority > prev.Priority {
			prev.Priority = t.Priority
		}
		if prev.Since.IsZero() || (!t.Since.IsZero() && t.Since.Before(prev.Since)) {
			prev.Since = t.Since
		}
		byKey[key] = prev
	}

	out := make([]models.FetchTask, 0, len(byKey))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

// aggregator tallies results under its own lock.
type aggregator struct {
	mu      sync.Mutex
	started time.Time
	total   int
	done    int
	rep     models.Report
}

func newAggregator(started time.Time, total int) *aggregator {
	return &aggregator{
		started: started,
		total:   total,
		rep: models.Report{
			Started:     started,
			PerExchange: make(map[string]models.ExchangeCounts),
		},
	}
}

// record folds one result into the report and returns how many tasks have
// completed so far.
func (a *aggregator) record(res *models.FetchResult) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.done++
	a.rep.Attempted++
	counts := a.rep.PerExchange[res.Task.Exchange]
	counts.Attempted++

	switch res.Outcome {
	case models.OutcomeSuccess:
		a.rep.Succeeded++
		a.rep.RowsWritten += int64(res.Rows)
		counts.Succeeded++
	case models.OutcomeSkippedFresh:
		a.rep.SkippedFresh++
		counts.SkippedFresh++
	case models.OutcomeFatal:
		a.rep.Failed++
		a.rep.FatalFailures++
		counts.Failed++
	case models.OutcomeRetryExhausted:
		a.rep.Failed++
		a.rep.RetryExhausted++
		counts.Failed++
	}
	a.rep.PerExchange[res.Task.Exchange] = counts

	if res.Err != nil {
		a.rep.Failures = append(a.rep.Failures, models.TaskFailure{
			Exchange:  res.Task.Exchange,
			Symbol:    res.Task.Symbol,
			Timeframe: res.Task.Timeframe,
			Outcome:   res.Outcome.String(),
			Error:     res.Err.Error(),
		})
	}
	return a.done
}

func (a *aggregator) report(now time.Time) *models.Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.rep
	r.Elapsed = now.Sub(a.started)
	return &r
}
