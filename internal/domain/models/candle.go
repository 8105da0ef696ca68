package models

import "time"

// Candle represents a single OHLCV record for one timeframe bucket.
type Candle struct {
	Timestamp time.Time
	Symbol    string
	Exchange  string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// CandleBatch is the unit written to the store: ordered rows plus the
// metadata update they imply. Rows are timestamp-ascending.
type CandleBatch struct {
	Exchange  string
	Symbol    string
	Timeframe string
	Rows      []Candle
	FetchedAt time.Time
}

// LastTimestamp returns the timestamp of the newest row, zero if empty.
func (b *CandleBatch) LastTimestamp() time.Time {
	if len(b.Rows) == 0 {
		return time.Time{}
	}
	return b.Rows[len(b.Rows)-1].Timestamp
}
