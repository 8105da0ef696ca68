package models

import "time"

// CatalogSymbol is one listing from an exchange's live symbol catalog,
// fetched by exchange-specific clients outside this engine.
type CatalogSymbol struct {
	Symbol      string
	MinInterval string // smallest timeframe granularity the venue offers
	Tradable    bool
}

// SymbolCatalogEntry maps a symbol to the single exchange chosen as its
// source of truth, with the remaining venues recorded as alternates.
type SymbolCatalogEntry struct {
	Symbol     string
	Canonical  string   // canonical exchange, by configured preference order
	Alternates []string // other exchanges offering the symbol, sorted
}

// RateLimitHint carries response-header rate information reported by a
// source after a completed call. Zero values mean "no hint".
type RateLimitHint struct {
	Limit int
	Reset time.Time
}
