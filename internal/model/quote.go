package model

import "time"

// Quote is the latest price snapshot of one symbol, or a per-symbol error marker.
type Quote struct {
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	PctChange float64 `json:"pct_change"`
	Timestamp string  `json:"time,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// QuoteSet is the whole dashboard quote board. A poll tick replaces it
// atomically; fields are never merged across ticks.
type QuoteSet struct {
	Symbols   []string         `json:"symbols"`
	Quotes    map[string]Quote `json:"quotes"`
	Error     string           `json:"error,omitempty"` // top-level transport/API failure
	UpdatedAt time.Time        `json:"updated_at"`
}
