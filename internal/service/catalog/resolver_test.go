package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/models"
)

func listing(symbols ...string) []models.CatalogSymbol {
	out := make([]models.CatalogSymbol, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, models.CatalogSymbol{Symbol: s, MinInterval: "1m", Tradable: true})
	}
	return out
}

func TestResolvePreferenceOrder(t *testing.T) {
	catalogs := map[string][]models.CatalogSymbol{
		"A": listing("BTC", "ETH"),
		"B": listing("BTC", "SOL"),
	}

	res := Resolve(catalogs, []string{"A", "B"})

	require.Len(t, res.Entries, 3)
	assert.Equal(t, "A", res.Entries["BTC"].Canonical)
	assert.Equal(t, []string{"B"}, res.Entries["BTC"].Alternates)
	assert.Equal(t, "A", res.Entries["ETH"].Canonical)
	assert.Equal(t, "B", res.Entries["SOL"].Canonical)
	assert.Empty(t, res.Entries["SOL"].Alternates)
}

func TestResolveDeterministic(t *testing.T) {
	catalogs := map[string][]models.CatalogSymbol{
		"binance":  listing("BTCUSDT", "ETHUSDT", "SOLUSDT"),
		"coinbase": listing("BTCUSDT", "ADAUSDT"),
		"kraken":   listing("BTCUSDT", "ETHUSDT", "DOTUSDT"),
	}
	prefs := []string{"binance", "coinbase", "kraken"}

	first := Resolve(catalogs, prefs)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(catalogs, prefs))
	}
}

func TestResolveUnlistedExchangesRankLast(t *testing.T) {
	catalogs := map[string][]models.CatalogSymbol{
		"zeta":  listing("BTC"),
		"alpha": listing("BTC"),
		"B":     listing("BTC"),
	}

	// only B is preferred; alpha/zeta fall back to name order
	res := Resolve(catalogs, []string{"B"})
	assert.Equal(t, "B", res.Entries["BTC"].Canonical)
	assert.Equal(t, []string{"alpha", "zeta"}, res.Entries["BTC"].Alternates)

	res = Resolve(catalogs, nil)
	assert.Equal(t, "alpha", res.Entries["BTC"].Canonical)
}

func TestResolveSkipsNonTradable(t *testing.T) {
	catalogs := map[string][]models.CatalogSymbol{
		"A": {
			{Symbol: "BTC", Tradable: true},
			{Symbol: "DELISTED", Tradable: false},
		},
	}

	res := Resolve(catalogs, []string{"A"})
	assert.Contains(t, res.Entries, "BTC")
	assert.NotContains(t, res.Entries, "DELISTED")
}

func TestResolveExclusiveListing(t *testing.T) {
	catalogs := map[string][]models.CatalogSymbol{
		"A": listing("BTC", "ETH"),
		"B": listing("BTC", "SOL", "ADA"),
	}

	res := Resolve(catalogs, []string{"A", "B"})
	assert.Equal(t, []string{"ETH"}, res.Exclusive["A"])
	assert.Equal(t, []string{"ADA", "SOL"}, res.Exclusive["B"])
}

func TestResolveDedupesWithinExchange(t *testing.T) {
	catalogs := map[string][]models.CatalogSymbol{
		"A": listing("BTC", "BTC", "BTC"),
	}

	res := Resolve(catalogs, []string{"A"})
	assert.Empty(t, res.Entries["BTC"].Alternates)
}

func TestEffectiveExchangeFallback(t *testing.T) {
	entry := models.SymbolCatalogEntry{
		Symbol:     "BTC",
		Canonical:  "A",
		Alternates: []string{"B", "C"},
	}
	prefs := []string{"A", "C", "B"}

	assert.Equal(t, "A", EffectiveExchange(entry, prefs, nil))
	assert.Equal(t, "C", EffectiveExchange(entry, prefs, map[string]bool{"A": true}))
	assert.Equal(t, "B", EffectiveExchange(entry, prefs, map[string]bool{"A": true, "C": true}))
	assert.Equal(t, "", EffectiveExchange(entry, prefs, map[string]bool{"A": true, "B": true, "C": true}))
}

func TestEffectiveExchangeDoesNotMutateEntry(t *testing.T) {
	entry := models.SymbolCatalogEntry{
		Symbol:     "BTC",
		Canonical:  "A",
		Alternates: []string{"C", "B"},
	}
	_ = EffectiveExchange(entry, []string{"A", "B", "C"}, map[string]bool{"A": true})
	assert.Equal(t, []string{"C", "B"}, entry.Alternates)
}

func TestResolutionSymbolsSorted(t *testing.T) {
	catalogs := map[string][]models.CatalogSymbol{
		"A": listing("ETH", "ADA", "BTC"),
	}
	res := Resolve(catalogs, []string{"A"})
	assert.Equal(t, []string{"ADA", "BTC", "ETH"}, res.Symbols())
}
