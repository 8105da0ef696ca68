package repository

import (
	"context"
	"time"

	"CandlePull/internal/domain/models"
)

// FetchRequest describes one remote candle request. ProxyURL is the outbound
// identity chosen by the engine; empty means direct connection.
type FetchRequest struct {
	Symbol    string
	Timeframe Timeframe
	Since     time.Time
	ProxyURL  string
}

// FetchResponse carries the fetched rows plus any rate information the venue
// reported in response headers.
type FetchResponse struct {
	Candles []models.Candle
	Hint    models.RateLimitHint
}

// CandleSource performs the actual network call for one exchange. Concrete
// implementations live outside this engine; errors must wrap the models
// sentinels so the retry executor can classify them.
type CandleSource interface {
	Exchange() string
	Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// CatalogProvider supplies an exchange's live symbol listing.
type CatalogProvider interface {
	Exchange() string
	Symbols(ctx context.Context) ([]models.CatalogSymbol, error)
}

// CandleStore is the local cache: ordered OHLCV rows plus cache metadata.
// WriteBatch commits rows and the implied meta update together; partial
// writes must not be observable for a key.
type CandleStore interface {
	Init(ctx context.Context) error
	WriteBatch(ctx context.Context, batch *models.CandleBatch) (*models.CacheMeta, error)
	Query(ctx context.Context, exchange, symbol string, tf Timeframe, from, to time.Time, limit int) ([]models.Candle, error)
	Health(ctx context.Context) error
	Close() error
}

// MetaStore reads and writes CacheMeta records. Get returns
// models.ErrCacheMiss for unseen keys.
type MetaStore interface {
	Get(ctx context.Context, exchange, symbol string, tf Timeframe) (*models.CacheMeta, error)
	Put(ctx context.Context, meta *models.CacheMeta) error
}

// ReportPublisher pushes completed candle batches and run reports to an
// external stream for downstream consumers.
type ReportPublisher interface {
	PublishBatch(ctx context.Context, batch *models.CandleBatch) error
	PublishReport(ctx context.Context, report *models.Report) error
	Close() error
}

// RateLimitObserver is notified when a limiter observes a rate-limit signal.
// The proxy-rotation strategy implements it.
type RateLimitObserver interface {
	OnLimited(exchange string)
}

// Clock abstracts time for backoff schedules so they are testable without
// wall-clock delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Metrics is the engine's instrumentation surface.
type Metrics interface {
	RecordFetch(exchange, outcome string)
	RecordRateLimited(exchange string)
	RecordProxyPool(available, cooling, banned int)
	RecordCandlesWritten(exchange string, n int)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}
