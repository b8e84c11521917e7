package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID         int64           `db:"tx_id"`
	Timestamp  time.Time       `db:"ts"`
	Product    string          `db:"product"`
	ISIN       string          `db:"isin"`
	Type       string          `db:"tx_type"`
	Quantity   decimal.Decimal `db:"quantity"`
	CashAmount decimal.Decimal `db:"cash_amount"`
	Currency   string          `db:"currency"`
}

type Asset struct {
	Key         string          `db:"asset_key"`
	TargetPct   decimal.Decimal `db:"target_pct"`
	DisplayName string          `db:"display_name"`
}

type Settings struct {
	StockFeeEur  decimal.Decimal `db:"stock_fee_eur"`
	CryptoFeePct decimal.Decimal `db:"crypto_fee_pct"`
}
