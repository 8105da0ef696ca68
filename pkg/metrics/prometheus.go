package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchesTotal   *prometheus.CounterVec
	rateLimitHits  *prometheus.CounterVec
	candlesWritten *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	proxyPoolState *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlepull_fetches_total",
				Help: "Fetch tasks by exchange and outcome",
			},
			[]string{"exchange", "outcome"},
		),
		rateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlepull_rate_limit_hits_total",
				Help: "Rate-limit signals observed per exchange",
			},
			[]string{"exchange"},
		),
		candlesWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlepull_candles_written_total",
				Help: "OHLCV rows committed to the cache",
			},
			[]string{"exchange"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlepull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		proxyPoolState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "candlepull_proxy_pool",
				Help: "Proxy pool entries by state",
			},
			[]string{"state"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "candlepull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFetch counts one completed fetch task.
func (r *Recorder) RecordFetch(exchange, outcome string) {
	r.fetchesTotal.WithLabelValues(exchange, outcome).Inc()
}

// RecordRateLimited counts a venue push-back.
func (r *Recorder) RecordRateLimited(exchange string) {
	r.rateLimitHits.WithLabelValues(exchange).Inc()
}

// RecordProxyPool publishes pool health gauges.
func (r *Recorder) RecordProxyPool(available, cooling, banned int) {
	r.proxyPoolState.WithLabelValues("available").Set(float64(available))
	r.proxyPoolState.WithLabelValues("cooling").Set(float64(cooling))
	r.proxyPoolState.WithLabelValues("banned").Set(float64(banned))
}

// RecordCandlesWritten counts committed rows.
func (r *Recorder) RecordCandlesWritten(exchange string, n int) {
	r.candlesWritten.WithLabelValues(exchange).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
