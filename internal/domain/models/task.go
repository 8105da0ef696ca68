package models

import "time"

// FetchTask is an immutable unit of acquisition work. Created by the
// scheduler when staleness or first-fetch is detected; consumed exactly once
// by a worker.
type FetchTask struct {
	Exchange  string
	Symbol    string
	Timeframe string
	Since     time.Time // fetch candles newer than this; zero means full history
	Priority  int       // higher runs first
}

// Key identifies the symbol+timeframe slot the task writes to. Tasks sharing
// a key must not run concurrently.
func (t FetchTask) Key() string {
	return MetaKey(t.Exchange, t.Symbol, t.Timeframe)
}

// Outcome classifies how a task ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSkippedFresh
	OutcomeRetryExhausted
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkippedFresh:
		return "skipped_fresh"
	case OutcomeRetryExhausted:
		return "retry_exhausted"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// FetchResult is produced by a worker and consumed by the aggregator.
// Never mutated after creation.
type FetchResult struct {
	Task     FetchTask
	Outcome  Outcome
	Rows     int
	Attempts int
	Err      error
	Elapsed  time.Duration
}
