package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/models"
	domrepo "CandlePull/internal/domain/repository"
	"CandlePull/internal/service/proxypool"
	"CandlePull/internal/service/ratelimit"
	"CandlePull/internal/service/retry"
	"CandlePull/internal/usecase"
	xhttp "CandlePull/pkg/http"
	xlogger "CandlePull/pkg/logger"
)

// catalogStub reports whether the context it was handed had already been
// canceled when the run reached it.
type catalogStub struct {
	observed chan bool
}

func (c *catalogStub) Exchange() string { return "binance" }

func (c *catalogStub) Symbols(ctx context.Context) ([]models.CatalogSymbol, error) {
	c.observed <- ctx.Err() != nil
	return nil, ctx.Err()
}

func newTriggerHandler(t *testing.T, base context.Context, stub *catalogStub) *StatusHandler {
	t.Helper()
	log, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	sched := usecase.NewScheduler(
		usecase.SchedulerConfig{Concurrency: 1, Lookback: time.Hour},
		nil, nil, nil,
		ratelimit.NewRegistry(nil),
		proxypool.New(proxypool.DefaultConfig(), nil),
		retry.New(retry.Policy{MaxAttempts: 1}),
	)
	session := usecase.NewSession(usecase.SessionConfig{
		Exchanges:  []string{"binance"},
		Timeframes: []string{"1h"},
	}, []domrepo.CatalogProvider{stub}, nil, sched, log)

	return NewStatusHandler(log, nil, proxypool.New(proxypool.DefaultConfig(), nil), session, usecase.NewReportTracker(), nil, base)
}

func postRun(t *testing.T, h *StatusHandler) xhttp.APIResponse {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(`{"force":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.TriggerRun(e.NewContext(req, rec)))

	var resp xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestTriggerRunUsesLifetimeContext(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	cancel() // shutdown already happened

	stub := &catalogStub{observed: make(chan bool, 1)}
	h := newTriggerHandler(t, base, stub)

	resp := postRun(t, h)
	assert.Equal(t, http.StatusOK, resp.Status, "trigger itself is accepted")

	select {
	case canceled := <-stub.observed:
		assert.True(t, canceled, "triggered run must run under the app-lifetime context")
	case <-time.After(5 * time.Second):
		t.Fatal("triggered run never started")
	}

	require.Eventually(t, func() bool { return !h.running.Load() }, 5*time.Second, 10*time.Millisecond)
	assert.Nil(t, h.tracker.Latest(), "aborted run leaves no report")
}

func TestTriggerRunRejectsConcurrentRuns(t *testing.T) {
	stub := &catalogStub{observed: make(chan bool, 1)}
	h := newTriggerHandler(t, context.Background(), stub)
	h.running.Store(true)

	resp := postRun(t, h)
	assert.Equal(t, http.StatusConflict, resp.Status)
}
