package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"CandlePull/internal/domain/repository"
	"CandlePull/internal/usecase"
	pkgch "CandlePull/pkg/clickhouse"
	"CandlePull/pkg/config"
	xhttp "CandlePull/pkg/http"
	applogger "CandlePull/pkg/logger"
)

// Lifecycle carries the application-lifetime context. Everything that starts
// background work off it, the initial session and API-triggered runs alike,
// stops when Shutdown fires.
type Lifecycle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewLifecycle creates a live lifecycle.
func NewLifecycle() *Lifecycle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lifecycle{ctx: ctx, cancel: cancel}
}

// Context returns the lifetime context.
func (l *Lifecycle) Context() context.Context { return l.ctx }

// Shutdown cancels the lifetime context. Idempotent.
func (l *Lifecycle) Shutdown() { l.cancel() }

// App encapsulates the entire application lifecycle: ops HTTP server, the
// initial acquisition run, and graceful teardown of infrastructure clients.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	lc        *Lifecycle
	session   *usecase.Session
	tracker   *usecase.ReportTracker
	handler   xhttp.Handler
	publisher repository.ReportPublisher
	chClient  *pkgch.Client

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies. publisher may be nil
// when the Kafka sink is disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	lc *Lifecycle,
	session *usecase.Session,
	tracker *usecase.ReportTracker,
	handler xhttp.Handler,
	publisher repository.ReportPublisher,
	chClient *pkgch.Client,
) *App {
	if lc == nil {
		lc = NewLifecycle()
	}
	return &App{
		cfg:       cfg,
		log:       log,
		lc:        lc,
		session:   session,
		tracker:   tracker,
		handler:   handler,
		publisher: publisher,
		chClient:  chClient,
	}
}

// Run starts the ops server, kicks off the initial acquisition session, and
// blocks until interrupted.
func (a *App) Run() error {
	ctx := a.lc.Context()
	defer a.lc.Shutdown()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	go func() {
		report, err := a.session.Run(ctx)
		if err != nil {
			a.log.Error("acquisition run failed", applogger.Error(err))
		}
		if report != nil {
			a.tracker.Set(report)
			a.log.Info("acquisition run finished",
				applogger.Int("attempted", report.Attempted),
				applogger.Int("succeeded", report.Succeeded),
				applogger.Int("skipped_fresh", report.SkippedFresh),
				applogger.Int("failed", report.Failed),
				applogger.Int64("rows", report.RowsWritten),
				applogger.Duration("elapsed", report.Elapsed))
		}
	}()
	a.log.Info("acquisition session started",
		applogger.Strings("exchanges", a.cfg.Priority),
		applogger.Strings("timeframes", a.cfg.Scheduler.Timeframes))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	a.lc.Shutdown()
	return a.shutdown()
}

// shutdown gracefully stops the ops server and closes infrastructure clients.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
