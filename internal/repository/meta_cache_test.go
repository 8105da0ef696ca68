package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
	"CandlePull/pkg/cache"
)

type fakeMetaStore struct {
	mu   sync.Mutex
	meta map[string]*models.CacheMeta
	gets int
}

func newFakeMetaStore() *fakeMetaStore {
	return &fakeMetaStore{meta: make(map[string]*models.CacheMeta)}
}

func (f *fakeMetaStore) Get(_ context.Context, exchange, symbol string, tf repository.Timeframe) (*models.CacheMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	m, ok := f.meta[models.MetaKey(exchange, symbol, string(tf))]
	if !ok {
		return nil, models.ErrCacheMiss
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMetaStore) Put(_ context.Context, m *models.CacheMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.meta[m.Key()] = &cp
	return nil
}

func TestCachedMetaStoreMissPassesThrough(t *testing.T) {
	inner := newFakeMetaStore()
	mem := cache.NewMemoryCache()
	defer mem.Close()
	s := NewCachedMetaStore(inner, mem, time.Minute)

	_, err := s.Get(context.Background(), "binance", "BTCUSDT", repository.TF1h)
	assert.ErrorIs(t, err, models.ErrCacheMiss)
}

func TestCachedMetaStoreSecondGetHitsCache(t *testing.T) {
	inner := newFakeMetaStore()
	mem := cache.NewMemoryCache()
	defer mem.Close()
	s := NewCachedMetaStore(inner, mem, time.Minute)

	want := &models.CacheMeta{
		Exchange: "binance", Symbol: "BTCUSDT", Timeframe: "1h",
		LastCandle: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
		LastFetch:  time.Date(2025, 6, 1, 11, 5, 0, 0, time.UTC),
		RowCount:   100,
	}
	require.NoError(t, inner.Put(context.Background(), want))

	first, err := s.Get(context.Background(), "binance", "BTCUSDT", repository.TF1h)
	require.NoError(t, err)
	second, err := s.Get(context.Background(), "binance", "BTCUSDT", repository.TF1h)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.gets, "second lookup served from cache")
}

func TestCachedMetaStorePutWritesThrough(t *testing.T) {
	inner := newFakeMetaStore()
	mem := cache.NewMemoryCache()
	defer mem.Close()
	s := NewCachedMetaStore(inner, mem, time.Minute)

	m := &models.CacheMeta{
		Exchange: "binance", Symbol: "ETHUSDT", Timeframe: "1h",
		LastCandle: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
		LastFetch:  time.Date(2025, 6, 1, 11, 5, 0, 0, time.UTC),
		RowCount:   42,
	}
	require.NoError(t, s.Put(context.Background(), m))

	// inner has it
	got, err := inner.Get(context.Background(), "binance", "ETHUSDT", repository.TF1h)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.RowCount)

	// cache has it too: no extra inner lookup
	gets := inner.gets
	cached, err := s.Get(context.Background(), "binance", "ETHUSDT", repository.TF1h)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cached.RowCount)
	assert.Equal(t, gets, inner.gets)
}
