package repository

import (
	"context"
	"errors"
	"time"

	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
	"CandlePull/pkg/cache"
)

// CachedMetaStore layers the session cache over a persistent MetaStore so the
// staleness check for a hot key avoids a database round-trip. Writes go
// through to the inner store first.
type CachedMetaStore struct {
	inner repository.MetaStore
	cache cache.Service
	ttl   time.Duration
}

// NewCachedMetaStore wraps inner with the given cache. ttl <= 0 defaults to
// five minutes.
func NewCachedMetaStore(inner repository.MetaStore, c cache.Service, ttl time.Duration) *CachedMetaStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedMetaStore{inner: inner, cache: c, ttl: ttl}
}

func metaCacheKey(exchange, symbol string, tf repository.Timeframe) string {
	return cache.GenerateKey("meta", models.MetaKey(exchange, symbol, string(tf)))
}

func (s *CachedMetaStore) Get(ctx context.Context, exchange, symbol string, tf repository.Timeframe) (*models.CacheMeta, error) {
	key := metaCacheKey(exchange, symbol, tf)

	var cached models.CacheMeta
	if err := s.cache.Get(ctx, key, &cached); err == nil && !cached.LastFetch.IsZero() {
		return &cached, nil
	}

	meta, err := s.inner.Get(ctx, exchange, symbol, tf)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, *meta, s.ttl)
	return meta, nil
}

func (s *CachedMetaStore) Put(ctx context.Context, meta *models.CacheMeta) error {
	if err := s.inner.Put(ctx, meta); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, metaCacheKey(meta.Exchange, meta.Symbol, repository.Timeframe(meta.Timeframe)), *meta, s.ttl); err != nil &&
		!errors.Is(err, context.Canceled) {
		// stale cache entry is tolerable, the TTL bounds the damage
		_ = s.cache.Delete(ctx, metaCacheKey(meta.Exchange, meta.Symbol, repository.Timeframe(meta.Timeframe)))
	}
	return nil
}
