package staleness

import (
	"time"

	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
)

// Policy decides when cached candles must be refetched. Conditions combine
// with OR: any single one marks the key stale.
type Policy struct {
	// MaxAge is the tolerated wall-clock age of the last fetch. Zero picks
	// the per-timeframe default.
	MaxAge time.Duration

	// MinRows marks the key stale when the cache holds fewer rows, so a
	// truncated first fetch gets repaired. Zero disables the check.
	MinRows int64

	// Force refetches regardless of cache state.
	Force bool
}

// Reason explains a refresh decision in reports and logs.
type Reason string

const (
	ReasonFresh     Reason = "fresh"
	ReasonForced    Reason = "forced"
	ReasonNoMeta    Reason = "no_meta"
	ReasonNoCandles Reason = "no_candles"
	ReasonAged      Reason = "aged_out"
	ReasonCandleGap Reason = "candle_gap"
	ReasonTooFew    Reason = "too_few_rows"
)

// DefaultMaxAge returns the tolerated fetch age for a timeframe: twice the
// candle interval, so a refresh triggers once a full closed candle is missing
// rather than on every in-progress one.
func DefaultMaxAge(tf repository.Timeframe) time.Duration {
	if d := tf.Duration(); d > 0 {
		return 2 * d
	}
	return 2 * time.Hour
}

// NeedsRefresh reports whether the key behind meta must be refetched at time
// now. A nil meta means the key was never fetched. Pure: no clock reads, no
// I/O.
func NeedsRefresh(meta *models.CacheMeta, tf repository.Timeframe, p Policy, now time.Time) (bool, Reason) {
	if p.Force {
		return true, ReasonForced
	}
	if meta == nil {
		return true, ReasonNoMeta
	}
	if meta.LastCandle.IsZero() || meta.LastFetch.IsZero() {
		return true, ReasonNoCandles
	}

	maxAge := p.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge(tf)
	}
	if now.Sub(meta.LastFetch) > maxAge {
		return true, ReasonAged
	}

	// a closed candle is overdue: the newest cached one is more than a full
	// interval (plus the in-progress one) behind
	if gap := DefaultMaxAge(tf); now.Sub(meta.LastCandle) > gap {
		return true, ReasonCandleGap
	}

	if p.MinRows > 0 && meta.RowCount < p.MinRows {
		return true, ReasonTooFew
	}
	return false, ReasonFresh
}

// NextSince returns the fetch start for a refresh: one interval before the
// newest cached candle so the previously open candle is re-read, or zero time
// for a cold key (caller then applies its configured lookback).
func NextSince(meta *models.CacheMeta, tf repository.Timeframe) time.Time {
	if meta == nil || meta.LastCandle.IsZero() {
		return time.Time{}
	}
	return meta.LastCandle.Add(-tf.Duration())
}
