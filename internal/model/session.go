package model

type action int

const (
	DefaultAction action = iota
	ExpectingBudget
	ExpectingTargetKey
	ExpectingTargetPct
	ExpectingStockFee
	ExpectingCryptoFee
)

type Session struct {
	Action      action
	AssetKey    string
	PreventSell bool
}
