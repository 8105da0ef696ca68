package catalog

import (
	"sort"

	"CandlePull/internal/domain/models"
)

// Resolution is the merged view over all exchange catalogs.
type Resolution struct {
	// Entries maps each tradable symbol to its canonical exchange.
	Entries map[string]models.SymbolCatalogEntry

	// Exclusive lists, per exchange, the symbols only that venue offers.
	Exclusive map[string][]string
}

// Symbols returns all resolved symbols in sorted order.
func (r *Resolution) Symbols() []string {
	out := make([]string, 0, len(r.Entries))
	for s := range r.Entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Resolve merges per-exchange catalogs into one symbol-to-exchange mapping.
// A symbol listed on several venues is assigned the first exchange in prefs
// that offers it; the rest become alternates and are not fetched. Exchanges
// absent from prefs rank after all preferred ones, in name order, so the
// output is identical run-to-run for identical inputs. Non-tradable listings
// are ignored.
func Resolve(catalogs map[string][]models.CatalogSymbol, prefs []string) *Resolution {
	rank := make(map[string]int, len(prefs))
	for i, ex := range prefs {
		rank[ex] = i
	}
	unranked := func(ex string) bool {
		_, ok := rank[ex]
		return !ok
	}

	// symbol -> offering exchanges
	offers := make(map[string][]string)
	for ex, listing := range catalogs {
		seen := make(map[string]bool, len(listing))
		for _, cs := range listing {
			if !cs.Tradable || cs.Symbol == "" || seen[cs.Symbol] {
				continue
			}
			seen[cs.Symbol] = true
			offers[cs.Symbol] = append(offers[cs.Symbol], ex)
		}
	}

	res := &Resolution{
		Entries:   make(map[string]models.SymbolCatalogEntry, len(offers)),
		Exclusive: make(map[string][]string),
	}
	for sym, exchanges := range offers {
		sort.Slice(exchanges, func(i, j int) bool {
			a, b := exchanges[i], exchanges[j]
			switch {
			case unranked(a) != unranked(b):
				return !unranked(a)
			case unranked(a):
				return a < b
			default:
				return rank[a] < rank[b]
			}
		})

		entry := models.SymbolCatalogEntry{
			Symbol:    sym,
			Canonical: exchanges[0],
		}
		if len(exchanges) > 1 {
			entry.Alternates = append(entry.Alternates, exchanges[1:]...)
			sort.Strings(entry.Alternates)
		} else {
			res.Exclusive[exchanges[0]] = append(res.Exclusive[exchanges[0]], sym)
		}
		res.Entries[sym] = entry
	}

	for ex := range res.Exclusive {
		sort.Strings(res.Exclusive[ex])
	}
	return res
}

// EffectiveExchange picks the exchange to fetch entry.Symbol from given the
// set of venues currently unavailable. The canonical choice wins when up;
// otherwise the first reachable alternate in prefs order is used for this
// session only. Empty string means no venue can serve the symbol right now.
func EffectiveExchange(entry models.SymbolCatalogEntry, prefs []string, unavailable map[string]bool) string {
	if !unavailable[entry.Canonical] {
		return entry.Canonical
	}

	rank := make(map[string]int, len(prefs))
	for i, ex := range prefs {
		rank[ex] = i
	}
	candidates := append([]string(nil), entry.Alternates...)
	sort.Slice(candidates, func(i, j int) bool {
		ri, iok := rank[candidates[i]]
		rj, jok := rank[candidates[j]]
		switch {
		case iok != jok:
			return iok
		case !iok:
			return candidates[i] < candidates[j]
		default:
			return ri < rj
		}
	})
	for _, ex := range candidates {
		if !unavailable[ex] {
			return ex
		}
	}
	return ""
}
