package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the running state of one instrument, recomputed on every
// ledger reload and never persisted on its own.
type Position struct {
	Key       string
	Product   string
	ISIN      string
	Quantity  decimal.Decimal
	CostBasis decimal.Decimal
	Ticker    string // empty when unresolved; consumers treat that as "no live data"
	IsCrypto  bool
	FirstSeen time.Time
}

// QuantityEvent is the signed quantity delta of one trade.
type QuantityEvent struct {
	Timestamp time.Time
	Delta     decimal.Decimal
}

type PositionView struct {
	Position
	DisplayName string
	Price       decimal.Decimal
	Value       decimal.Decimal
	DayChange   decimal.Decimal
	TargetPct   decimal.Decimal
}

type PortfolioOverview struct {
	Positions      []PositionView
	TotalValue     decimal.Decimal
	TotalDayChange decimal.Decimal
	Unpriced       []string // instrument keys without a resolved ticker
}
