package usecase

import (
	"sync"

	"CandlePull/internal/domain/models"
)

// ReportTracker keeps the most recent run report for the ops endpoints.
type ReportTracker struct {
	mu     sync.RWMutex
	latest *models.Report
}

func NewReportTracker() *ReportTracker { return &ReportTracker{} }

func (t *ReportTracker) Set(r *models.Report) {
	t.mu.Lock()
	t.latest = r
	t.mu.Unlock()
}

// Latest returns the last stored report, nil when no run has completed yet.
func (t *ReportTracker) Latest() *models.Report {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}
