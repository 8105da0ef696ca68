package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"CandlePull/internal/domain/models"
	domrepo "CandlePull/internal/domain/repository"
	"CandlePull/internal/service/proxypool"
	"CandlePull/internal/usecase"
	xhttp "CandlePull/pkg/http"
	xlogger "CandlePull/pkg/logger"
	"CandlePull/pkg/util"
)

// StatusHandler exposes the ops endpoints: health, cached candles, the last
// run report, and manual run triggering.
type StatusHandler struct {
	logger  *xlogger.Logger
	store   domrepo.CandleStore
	pool    *proxypool.Pool
	session *usecase.Session
	tracker *usecase.ReportTracker
	hub     *ProgressHub

	// base is the app-lifetime context triggered runs derive from, so
	// shutdown stops them. nil defaults to context.Background().
	base context.Context

	running atomic.Bool
}

func NewStatusHandler(
	logger *xlogger.Logger,
	store domrepo.CandleStore,
	pool *proxypool.Pool,
	session *usecase.Session,
	tracker *usecase.ReportTracker,
	hub *ProgressHub,
	base context.Context,
) *StatusHandler {
	if base == nil {
		base = context.Background()
	}
	return &StatusHandler{
		logger:  logger,
		store:   store,
		pool:    pool,
		session: session,
		tracker: tracker,
		hub:     hub,
		base:    base,
	}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/ws/progress", h.hub.Serve)

	g := e.Group("/api")
	g.GET("/candles", h.Candles)
	g.GET("/report", h.Report)
	g.POST("/run", h.TriggerRun)
}

func (h *StatusHandler) Health(c echo.Context) error {
	status := models.HealthStatus{Status: "ok", Store: "ok"}
	if err := h.store.Health(c.Request().Context()); err != nil {
		status.Status = "degraded"
		status.Store = err.Error()
	}
	stats := h.pool.Stats()
	status.Proxies = map[string]int{
		"available": stats.Available,
		"cooling":   stats.Cooling,
		"banned":    stats.Banned,
	}
	return xhttp.SuccessResponse(c, status)
}

func (h *StatusHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.Timeframe)

	from := xhttp.ParseTimeDefault(req.From, time.Unix(0, 0))
	to := xhttp.ParseTimeDefault(req.To, time.Now())
	from, to = util.AlignFromTo(from, to, tf.Duration())

	rows, err := h.store.Query(c.Request().Context(), req.Exchange, req.Symbol, tf, from, to, req.Limit)
	if err != nil {
		h.logger.Error("candle query failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *StatusHandler) Report(c echo.Context) error {
	report := h.tracker.Latest()
	if report == nil {
		return xhttp.NotFoundResponse(c, "no completed run yet")
	}
	return xhttp.SuccessResponse(c, report)
}

// TriggerRun starts an acquisition run in the background. Only one run may be
// in flight at a time.
func (h *StatusHandler) TriggerRun(c echo.Context) error {
	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if !h.running.CompareAndSwap(false, true) {
		return xhttp.DataResponse(c, 409, "run already in progress")
	}

	go func() {
		defer h.running.Store(false)
		report, err := h.session.RunWith(h.base, usecase.RunOverrides{
			Force:   req.Force,
			Symbols: req.Symbols,
		})
		if err != nil {
			h.logger.Error("triggered run failed", xlogger.Error(err))
		}
		if report != nil {
			h.tracker.Set(report)
		}
	}()

	return xhttp.SuccessResponse(c, map[string]string{"status": "started"})
}
