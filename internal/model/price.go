package model

import "time"

type Resolution string

const (
	ResolutionDaily    Resolution = "1d"
	ResolutionIntraday Resolution = "60m"
)

// PriceSample is one close price for one ticker at one resolution. All
// timestamps are normalized to a single timezone; daily samples are
// truncated to midnight.
type PriceSample struct {
	Timestamp time.Time
	Close     float64
}

// ValuationPoint is one row of a reconstructed per-instrument value series.
type ValuationPoint struct {
	Timestamp time.Time
	Quantity  float64
	Price     float64
	Value     float64
}
