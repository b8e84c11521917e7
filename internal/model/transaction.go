package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxBuy      TxType = "buy"
	TxSell     TxType = "sell"
	TxDividend TxType = "dividend"
	TxFee      TxType = "fee"
	TxDeposit  TxType = "deposit"
	TxOther    TxType = "other"
)

// Transaction is one normalized ledger row. Rows arrive already classified
// and column-normalized; this model is consumed read-only.
type Transaction struct {
	Timestamp  time.Time
	Product    string
	ISIN       string
	Type       TxType
	Quantity   decimal.Decimal
	CashAmount decimal.Decimal
	Currency   string
}

// Key returns the instrument key used to group transactions into positions:
// the ISIN when present, else the product name.
func (t Transaction) Key() string {
	if t.ISIN != "" {
		return t.ISIN
	}
	return t.Product
}
