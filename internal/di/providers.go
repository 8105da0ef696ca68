package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"CandlePull/internal/domain/repository"
	"CandlePull/internal/handler/api"
	internalrepo "CandlePull/internal/repository"
	"CandlePull/internal/service/proxypool"
	"CandlePull/internal/service/ratelimit"
	"CandlePull/internal/service/retry"
	"CandlePull/internal/service/staleness"
	"CandlePull/internal/usecase"
	"CandlePull/pkg/cache"
	pkgch "CandlePull/pkg/clickhouse"
	"CandlePull/pkg/config"
	xhttp "CandlePull/pkg/http"
	pkgkafka "CandlePull/pkg/kafka"
	applogger "CandlePull/pkg/logger"
	"CandlePull/pkg/metrics"
	"CandlePull/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCandleStore creates the ClickHouse candle store and ensures its
// schema exists.
func ProvideCandleStore(client *pkgch.Client) (*internalrepo.ClickHouseCandleStore, error) {
	store := internalrepo.NewClickHouseCandleStore(client.DB())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("candle store schema: %w", err)
	}
	return store, nil
}

// ProvideCache creates the session cache: layered memory+Redis when Redis is
// enabled, plain memory otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}

	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}

	redisCache, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix("candlepull"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(redisCache), nil
}

// ProvideMetaStore wraps the store's meta reads with the cache layer.
func ProvideMetaStore(store *internalrepo.ClickHouseCandleStore, c cache.Service, cfg *config.Config) repository.MetaStore {
	return internalrepo.NewCachedMetaStore(store, c, cfg.Redis.MetaTTL)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when the sink is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher creates the Kafka batch/report publisher, nil when
// disabled.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ReportPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.CandleTopic, cfg.Kafka.ReportTopic)
}

// ProvideProxyPool creates the proxy rotation pool.
func ProvideProxyPool(cfg *config.Config, m repository.Metrics, log *applogger.Logger) *proxypool.Pool {
	return proxypool.New(proxypool.Config{
		FailureThreshold: cfg.Proxies.FailureThreshold,
		BaseCooldown:     cfg.Proxies.BaseCooldown,
		MaxCooldown:      cfg.Proxies.MaxCooldown,
		BanAfterCycles:   cfg.Proxies.BanAfterCycles,
	}, cfg.Proxies.URLs,
		proxypool.WithMetrics(m),
		proxypool.WithLogger(log),
	)
}

// ProvideRateLimiters builds one limiter config per configured exchange.
func ProvideRateLimiters(cfg *config.Config, m repository.Metrics, log *applogger.Logger) *ratelimit.Registry {
	configs := make(map[string]ratelimit.Config, len(cfg.Exchanges))
	for name, ex := range cfg.Exchanges {
		configs[name] = ratelimit.Config{
			MaxRequests:     ex.RateLimit.MaxRequests,
			Period:          ex.RateLimit.Period,
			SecondaryMax:    ex.RateLimit.SecondaryMax,
			SecondaryPeriod: ex.RateLimit.SecondaryPeriod,
			SymbolGap:       ex.RateLimit.SymbolGap,
			SymbolJitter:    ex.RateLimit.SymbolJitter,
			BackoffFactor:   ex.RateLimit.BackoffFactor,
			BackoffMax:      ex.RateLimit.BackoffMax,
			RecoveryStreak:  ex.RateLimit.RecoveryStreak,
		}
	}
	return ratelimit.NewRegistry(configs,
		ratelimit.WithMetrics(m),
		ratelimit.WithLogger(log),
	)
}

// ProvideRetrier creates the retry executor.
func ProvideRetrier(cfg *config.Config, log *applogger.Logger) *retry.Executor {
	return retry.New(retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Jitter:      cfg.Retry.Jitter,
	}, retry.WithLogger(log))
}

// ProvideProgressHub creates the websocket progress feed.
func ProvideProgressHub(log *applogger.Logger) *api.ProgressHub {
	return api.NewProgressHub(log)
}

// ProvideReportTracker holds the most recent run report for the ops API.
func ProvideReportTracker() *usecase.ReportTracker {
	return usecase.NewReportTracker()
}

// ProvideLifecycle creates the app-lifetime context shared by the server loop
// and API-triggered runs.
func ProvideLifecycle() *server.Lifecycle {
	return server.NewLifecycle()
}

// ProvideScheduler creates the fetch scheduler.
func ProvideScheduler(
	cfg *config.Config,
	sources []repository.CandleSource,
	store repository.CandleStore,
	meta repository.MetaStore,
	limiters *ratelimit.Registry,
	pool *proxypool.Pool,
	retrier *retry.Executor,
	publisher repository.ReportPublisher,
	hub *api.ProgressHub,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Scheduler {
	opts := []usecase.SchedulerOption{
		usecase.WithProgress(hub),
		usecase.WithMetrics(m),
		usecase.WithLogger(log),
	}
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	return usecase.NewScheduler(
		usecase.SchedulerConfig{
			Concurrency: cfg.Scheduler.Concurrency,
			Lookback:    cfg.Scheduler.Lookback,
			Staleness: staleness.Policy{
				MaxAge:  cfg.Scheduler.MaxAge,
				MinRows: cfg.Scheduler.MinRows,
				Force:   cfg.Scheduler.Force,
			},
		},
		sources, store, meta, limiters, pool, retrier,
		opts...,
	)
}

// ProvideSession creates the acquisition session.
func ProvideSession(
	cfg *config.Config,
	providers []repository.CatalogProvider,
	c cache.Service,
	sched *usecase.Scheduler,
	log *applogger.Logger,
) *usecase.Session {
	return usecase.NewSession(usecase.SessionConfig{
		Exchanges:  cfg.Priority,
		Timeframes: cfg.Scheduler.Timeframes,
		Symbols:    cfg.Scheduler.Symbols,
		CatalogTTL: cfg.Scheduler.CatalogTTL,
	}, providers, c, sched, log)
}

// ProvideStatusHandler creates the ops HTTP handler.
func ProvideStatusHandler(
	log *applogger.Logger,
	store repository.CandleStore,
	pool *proxypool.Pool,
	session *usecase.Session,
	tracker *usecase.ReportTracker,
	hub *api.ProgressHub,
	lc *server.Lifecycle,
) xhttp.Handler {
	return api.NewStatusHandler(log, store, pool, session, tracker, hub, lc.Context())
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	lc *server.Lifecycle,
	session *usecase.Session,
	tracker *usecase.ReportTracker,
	handler xhttp.Handler,
	publisher repository.ReportPublisher,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, log, lc, session, tracker, handler, publisher, chClient)
}
