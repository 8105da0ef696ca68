package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/models"
	drepo "CandlePull/internal/domain/repository"
	"CandlePull/pkg/cache"
)

type fakeProvider struct {
	exchange string
	symbols  []string
	err      error
	calls    int
}

func (p *fakeProvider) Exchange() string { return p.exchange }

func (p *fakeProvider) Symbols(context.Context) ([]models.CatalogSymbol, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make([]models.CatalogSymbol, 0, len(p.symbols))
	for _, s := range p.symbols {
		out = append(out, models.CatalogSymbol{Symbol: s, MinInterval: "1m", Tradable: true})
	}
	return out, nil
}

func newSession(cfg SessionConfig, providers []drepo.CatalogProvider, catCache cache.Service) *Session {
	return NewSession(cfg, providers, catCache, nil, nil)
}

func TestBuildTasksCanonicalAssignment(t *testing.T) {
	a := &fakeProvider{exchange: "A", symbols: []string{"BTC", "ETH"}}
	b := &fakeProvider{exchange: "B", symbols: []string{"BTC", "SOL"}}
	s := newSession(SessionConfig{
		Exchanges:  []string{"A", "B"},
		Timeframes: []string{"1h"},
	}, []drepo.CatalogProvider{a, b}, nil)

	tasks, err := s.BuildTasks(context.Background())
	require.NoError(t, err)

	byKey := make(map[string]models.FetchTask)
	for _, task := range tasks {
		byKey[task.Symbol] = task
	}
	require.Len(t, tasks, 3)
	assert.Equal(t, "A", byKey["BTC"].Exchange)
	assert.Equal(t, "A", byKey["ETH"].Exchange)
	assert.Equal(t, "B", byKey["SOL"].Exchange)
}

func TestBuildTasksTimeframeExpansionAndPriority(t *testing.T) {
	a := &fakeProvider{exchange: "A", symbols: []string{"BTC"}}
	s := newSession(SessionConfig{
		Exchanges:  []string{"A"},
		Timeframes: []string{"1m", "1h", "1d"},
	}, []drepo.CatalogProvider{a}, nil)

	tasks, err := s.BuildTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "1m", tasks[0].Timeframe)
	assert.Greater(t, tasks[0].Priority, tasks[1].Priority, "earlier timeframes run first")
	assert.Greater(t, tasks[1].Priority, tasks[2].Priority)
}

func TestBuildTasksFallbackWhenCatalogDown(t *testing.T) {
	a := &fakeProvider{exchange: "A", err: errors.New("listing endpoint down")}
	b := &fakeProvider{exchange: "B", symbols: []string{"BTC"}}
	s := newSession(SessionConfig{
		Exchanges:  []string{"A", "B"},
		Timeframes: []string{"1h"},
	}, []drepo.CatalogProvider{a, b}, nil)

	tasks, err := s.BuildTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "B", tasks[0].Exchange, "session falls back to the next venue")
}

func TestBuildTasksAllCatalogsDown(t *testing.T) {
	a := &fakeProvider{exchange: "A", err: errors.New("down")}
	s := newSession(SessionConfig{
		Exchanges:  []string{"A"},
		Timeframes: []string{"1h"},
	}, []drepo.CatalogProvider{a}, nil)

	_, err := s.BuildTasks(context.Background())
	assert.Error(t, err)
}

func TestBuildTasksSymbolSubset(t *testing.T) {
	a := &fakeProvider{exchange: "A", symbols: []string{"BTC", "ETH", "SOL"}}
	s := newSession(SessionConfig{
		Exchanges:  []string{"A"},
		Timeframes: []string{"1h"},
		Symbols:    []string{"ETH"},
	}, []drepo.CatalogProvider{a}, nil)

	tasks, err := s.BuildTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "ETH", tasks[0].Symbol)
}

func TestCatalogSessionCache(t *testing.T) {
	a := &fakeProvider{exchange: "A", symbols: []string{"BTC"}}
	mem := cache.NewMemoryCache()
	defer mem.Close()

	s := newSession(SessionConfig{
		Exchanges:  []string{"A"},
		Timeframes: []string{"1h"},
		CatalogTTL: time.Minute,
	}, []drepo.CatalogProvider{a}, mem)

	_, err := s.BuildTasks(context.Background())
	require.NoError(t, err)
	_, err = s.BuildTasks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, a.calls, "second build reuses the cached listing")
}
