package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
)

// Schema statements for the candle cache, idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		exchange  LowCardinality(String),
		symbol    LowCardinality(String),
		timeframe LowCardinality(String),
		ts        DateTime64(3, 'UTC'),
		open      Float64,
		high      Float64,
		low       Float64,
		close     Float64,
		volume    Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (exchange, symbol, timeframe, ts)`,
	`CREATE TABLE IF NOT EXISTS candle_meta (
		exchange    LowCardinality(String),
		symbol      LowCardinality(String),
		timeframe   LowCardinality(String),
		last_candle DateTime64(3, 'UTC'),
		last_fetch  DateTime64(3, 'UTC'),
		row_count   UInt64
	) ENGINE = ReplacingMergeTree(last_fetch)
	ORDER BY (exchange, symbol, timeframe)`,
}

// ClickHouseCandleStore persists OHLCV rows and cache metadata. Duplicate
// rows from re-reading the previously open candle collapse in the replacing
// merge; the meta row is written only after the row insert succeeds, so a
// failed write leaves the old meta visible.
type ClickHouseCandleStore struct {
	db *sql.DB
}

// NewClickHouseCandleStore creates the store over an open connection pool.
func NewClickHouseCandleStore(db *sql.DB) *ClickHouseCandleStore {
	return &ClickHouseCandleStore{db: db}
}

func (s *ClickHouseCandleStore) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// WriteBatch inserts rows and commits the implied meta update. The meta's
// last_candle never moves backwards for a key, whatever the batch contains.
func (s *ClickHouseCandleStore) WriteBatch(ctx context.Context, batch *models.CandleBatch) (*models.CacheMeta, error) {
	rows := append([]models.Candle(nil), batch.Rows...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })

	prev, err := s.Get(ctx, batch.Exchange, batch.Symbol, repository.Timeframe(batch.Timeframe))
	if err != nil && !errors.Is(err, models.ErrCacheMiss) {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	if len(rows) > 0 {
		if err := s.insertRows(ctx, batch, rows); err != nil {
			return nil, fmt.Errorf("insert candles: %w", err)
		}
	}

	meta := &models.CacheMeta{
		Exchange:  batch.Exchange,
		Symbol:    batch.Symbol,
		Timeframe: batch.Timeframe,
		LastFetch: batch.FetchedAt,
	}
	var newRows int64
	if prev != nil {
		meta.LastCandle = prev.LastCandle
		meta.RowCount = prev.RowCount
	}
	for _, r := range rows {
		if prev == nil || r.Timestamp.After(prev.LastCandle) {
			newRows++
		}
	}
	if len(rows) > 0 && rows[len(rows)-1].Timestamp.After(meta.LastCandle) {
		meta.LastCandle = rows[len(rows)-1].Timestamp
	}
	meta.RowCount += newRows

	if err := s.Put(ctx, meta); err != nil {
		return nil, fmt.Errorf("write meta: %w", err)
	}
	return meta, nil
}

const insertChunk = 2000

func (s *ClickHouseCandleStore) insertRows(ctx context.Context, batch *models.CandleBatch, rows []models.Candle) error {
	for start := 0; start < len(rows); start += insertChunk {
		end := start + insertChunk
		if end > len(rows) {
			end = len(rows)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, r := range rows[start:end] {
			if r.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				batch.Exchange,
				batch.Symbol,
				batch.Timeframe,
				r.Timestamp,
				r.Open,
				r.High,
				r.Low,
				r.Close,
				r.Volume,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(
			"INSERT INTO candles (exchange, symbol, timeframe, ts, open, high, low, close, volume) VALUES %s",
			strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseCandleStore) Query(ctx context.Context, exchange, symbol string, tf repository.Timeframe, from, to time.Time, limit int) ([]models.Candle, error) {
	q := `SELECT ts, open, high, low, close, volume FROM candles
		WHERE exchange = ? AND symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, exchange, symbol, string(tf), from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		c := models.Candle{Exchange: exchange, Symbol: symbol}
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns the newest meta row for the key, models.ErrCacheMiss if absent.
func (s *ClickHouseCandleStore) Get(ctx context.Context, exchange, symbol string, tf repository.Timeframe) (*models.CacheMeta, error) {
	q := `SELECT last_candle, last_fetch, row_count FROM candle_meta
		WHERE exchange = ? AND symbol = ? AND timeframe = ?
		ORDER BY last_fetch DESC LIMIT 1`
	meta := &models.CacheMeta{Exchange: exchange, Symbol: symbol, Timeframe: string(tf)}
	err := s.db.QueryRowContext(ctx, q, exchange, symbol, string(tf)).
		Scan(&meta.LastCandle, &meta.LastFetch, &meta.RowCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// Put writes a meta row. The replacing merge keeps the newest last_fetch.
func (s *ClickHouseCandleStore) Put(ctx context.Context, meta *models.CacheMeta) error {
	q := `INSERT INTO candle_meta (exchange, symbol, timeframe, last_candle, last_fetch, row_count)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		meta.Exchange, meta.Symbol, meta.Timeframe,
		meta.LastCandle, meta.LastFetch, uint64(meta.RowCount))
	return err
}

func (s *ClickHouseCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseCandleStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}
