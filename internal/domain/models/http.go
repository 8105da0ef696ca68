package models

// CandlesRequest queries cached rows for one key.
type CandlesRequest struct {
	Exchange  string `query:"exchange" validate:"required"`
	Symbol    string `query:"symbol" validate:"required"`
	Timeframe string `query:"tf" default:"1h"`
	From      string `query:"from"` // RFC3339 or unix seconds, empty means open-ended
	To        string `query:"to"`
	Limit     int    `query:"limit" default:"500" validate:"gte=1,lte=10000"`
}

// RunRequest triggers an acquisition run.
type RunRequest struct {
	Force   bool     `json:"force"`
	Symbols []string `json:"symbols"`
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status  string         `json:"status"`
	Store   string         `json:"store"`
	Proxies map[string]int `json:"proxies"`
}
