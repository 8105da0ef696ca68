package models

import (
	"fmt"
	"time"
)

// CacheMeta describes what the local cache holds for one symbol+timeframe key.
// LastCandle is monotonically non-decreasing across successive writes for the
// same key; the store enforces it.
type CacheMeta struct {
	Exchange   string
	Symbol     string
	Timeframe  string
	LastCandle time.Time // timestamp of the newest cached candle
	LastFetch  time.Time // wall-clock time of the last successful fetch
	RowCount   int64
}

// MetaKey builds the cache key for a symbol+timeframe on an exchange.
func MetaKey(exchange, symbol, timeframe string) string {
	return fmt.Sprintf("%s:%s:%s", exchange, symbol, timeframe)
}

// Key returns the cache key for this meta record.
func (m *CacheMeta) Key() string {
	return MetaKey(m.Exchange, m.Symbol, m.Timeframe)
}
