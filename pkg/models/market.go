package models

import (
	"time"
)

// TradeTick is a single raw trade received over the bridge. Ticks are
// immutable once persisted.
type TradeTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// OHLCVBar is a resampled bar. Timestamp is the start of the bar interval
// (left-labeled). Bars are unique per (symbol, timestamp); duplicates from
// overlapping aggregation runs are resolved on read.
type OHLCVBar struct {
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Frame is the combined per-timestamp output consumed by the presentation
// layer. All slices share the Timestamps index and contain only rows where
// every column is defined.
type Frame struct {
	Timestamps []time.Time `json:"timestamps"`
	Target     []float64   `json:"target"`
	Reference  []float64   `json:"reference"`
	Beta       []float64   `json:"beta"`
	Spread     []float64   `json:"spread"`
	ZScore     []float64   `json:"z_score"`
}

// Len returns the number of rows in the frame.
func (f *Frame) Len() int {
	return len(f.Timestamps)
}
