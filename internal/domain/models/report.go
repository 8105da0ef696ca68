package models

import "time"

// ExchangeCounts tallies task outcomes for one exchange.
type ExchangeCounts struct {
	Attempted    int `json:"attempted"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	SkippedFresh int `json:"skipped_fresh"`
}

// TaskFailure records one failed task for the run report.
type TaskFailure struct {
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error"`
}

// Report is the aggregate result of one acquisition run. Individual task
// failures never abort the run; they only show up here.
type Report struct {
	Started        time.Time                 `json:"started"`
	Elapsed        time.Duration             `json:"elapsed"`
	Attempted      int                       `json:"attempted"`
	Succeeded      int                       `json:"succeeded"`
	Failed         int                       `json:"failed"`
	SkippedFresh   int                       `json:"skipped_fresh"`
	FatalFailures  int                       `json:"fatal_failures"`
	RetryExhausted int                       `json:"retry_exhausted"`
	RowsWritten    int64                     `json:"rows_written"`
	PerExchange    map[string]ExchangeCounts `json:"per_exchange"`
	Failures       []TaskFailure             `json:"failures,omitempty"`
}

// ProgressEvent is pushed to dashboard subscribers as tasks complete.
type ProgressEvent struct {
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Outcome   string `json:"outcome"`
	Rows      int    `json:"rows"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
}
