package model

import "github.com/shopspring/decimal"

type ActionDirection string

const (
	ActionBuy  ActionDirection = "buy"
	ActionSell ActionDirection = "sell"
	ActionNone ActionDirection = "none"
)

// RebalanceAction is one line of a trade plan. Transient: fully determined
// by the planning inputs, never persisted.
type RebalanceAction struct {
	Key          string
	DisplayName  string
	Direction    ActionDirection
	Value        decimal.Decimal // absolute executed value
	Shares       decimal.Decimal // fractional for crypto, whole otherwise
	Price        decimal.Decimal
	Fee          decimal.Decimal
	ResultingPct decimal.Decimal
	IsCrypto     bool
}

type RebalancePlan struct {
	Actions    []RebalanceAction
	TotalBuys  decimal.Decimal // fees included
	TotalSells decimal.Decimal // fees deducted
	NetCash    decimal.Decimal // TotalBuys - TotalSells
	Budget     decimal.Decimal
	Warnings   []string
}
