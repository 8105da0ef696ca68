package staleness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func meta(fetchAge, candleAge time.Duration) *models.CacheMeta {
	return &models.CacheMeta{
		Exchange:   "binance",
		Symbol:     "BTCUSDT",
		Timeframe:  "1h",
		LastCandle: testNow.Add(-candleAge),
		LastFetch:  testNow.Add(-fetchAge),
		RowCount:   1000,
	}
}

func TestMissingMetaIsStale(t *testing.T) {
	stale, reason := NeedsRefresh(nil, repository.TF1h, Policy{}, testNow)
	assert.True(t, stale)
	assert.Equal(t, ReasonNoMeta, reason)
}

func TestZeroLastCandleIsStale(t *testing.T) {
	m := meta(time.Minute, time.Minute)
	m.LastCandle = time.Time{}
	stale, reason := NeedsRefresh(m, repository.TF1h, Policy{}, testNow)
	assert.True(t, stale)
	assert.Equal(t, ReasonNoCandles, reason)
}

func TestFetchAgeAgainstExplicitMaxAge(t *testing.T) {
	// fetched two hours ago, candle recent enough either way
	m := meta(2*time.Hour, 30*time.Minute)

	stale, reason := NeedsRefresh(m, repository.TF1h, Policy{MaxAge: time.Hour}, testNow)
	assert.True(t, stale)
	assert.Equal(t, ReasonAged, reason)

	stale, reason = NeedsRefresh(m, repository.TF1h, Policy{MaxAge: 3 * time.Hour}, testNow)
	assert.False(t, stale)
	assert.Equal(t, ReasonFresh, reason)
}

func TestOverdueCandleIsStale(t *testing.T) {
	// fetch is recent but the newest 1h candle is three hours old
	m := meta(time.Minute, 3*time.Hour)
	stale, reason := NeedsRefresh(m, repository.TF1h, Policy{MaxAge: time.Hour}, testNow)
	assert.True(t, stale)
	assert.Equal(t, ReasonCandleGap, reason)
}

func TestDefaultMaxAgePerTimeframe(t *testing.T) {
	cases := []struct {
		tf   repository.Timeframe
		want time.Duration
	}{
		{repository.TF1m, 2 * time.Minute},
		{repository.TF5m, 10 * time.Minute},
		{repository.TF15m, 30 * time.Minute},
		{repository.TF30m, time.Hour},
		{repository.TF1h, 2 * time.Hour},
		{repository.TF1d, 48 * time.Hour},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DefaultMaxAge(tc.tf), "tf %s", tc.tf)
	}
	assert.Equal(t, 2*time.Hour, DefaultMaxAge("bogus"))
}

func TestDefaultPolicyBoundaries(t *testing.T) {
	// 1h candles tolerate up to 2h since the last fetch
	stale, _ := NeedsRefresh(meta(119*time.Minute, 30*time.Minute), repository.TF1h, Policy{}, testNow)
	assert.False(t, stale)

	stale, reason := NeedsRefresh(meta(121*time.Minute, 30*time.Minute), repository.TF1h, Policy{}, testNow)
	assert.True(t, stale)
	assert.Equal(t, ReasonAged, reason)
}

func TestMinRows(t *testing.T) {
	m := meta(time.Minute, time.Minute)
	m.RowCount = 10

	stale, reason := NeedsRefresh(m, repository.TF1h, Policy{MinRows: 100}, testNow)
	assert.True(t, stale)
	assert.Equal(t, ReasonTooFew, reason)

	stale, _ = NeedsRefresh(m, repository.TF1h, Policy{MinRows: 10}, testNow)
	assert.False(t, stale)
}

func TestForceWinsOverFreshCache(t *testing.T) {
	stale, reason := NeedsRefresh(meta(time.Minute, time.Minute), repository.TF1h, Policy{Force: true}, testNow)
	assert.True(t, stale)
	assert.Equal(t, ReasonForced, reason)
}

func TestPureFunction(t *testing.T) {
	m := meta(90*time.Minute, 45*time.Minute)
	p := Policy{MaxAge: time.Hour}
	first, firstReason := NeedsRefresh(m, repository.TF1h, p, testNow)
	for i := 0; i < 5; i++ {
		got, reason := NeedsRefresh(m, repository.TF1h, p, testNow)
		assert.Equal(t, first, got)
		assert.Equal(t, firstReason, reason)
	}
}

func TestNextSince(t *testing.T) {
	assert.True(t, NextSince(nil, repository.TF1h).IsZero())

	m := meta(time.Minute, time.Minute)
	want := m.LastCandle.Add(-time.Hour)
	assert.Equal(t, want, NextSince(m, repository.TF1h))
}
