package portfolio

import (
	"bytes"
	"testing"
	"time"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(day int, txType model.TxType, isin string, qty, cash float64) model.Transaction {
	return model.Transaction{
		Timestamp:  time.Date(2026, 2, day, 10, 0, 0, 0, time.UTC),
		Product:    "Product " + isin,
		ISIN:       isin,
		Type:       txType,
		Quantity:   decimal.NewFromFloat(qty),
		CashAmount: decimal.NewFromFloat(cash),
		Currency:   "EUR",
	}
}

func TestBuildPositions(t *testing.T) {
	t.Run("quantity and cost basis from signed cash", func(t *testing.T) {
		transactions := []model.Transaction{
			tx(1, model.TxBuy, "IE00TEST", 10, -1000),  // buy 10 for 1000
			tx(2, model.TxFee, "IE00TEST", 0, -1),      // fee adds to cost
			tx(3, model.TxSell, "IE00TEST", -4, 450),   // sell 4 for 450
			tx(4, model.TxDividend, "IE00TEST", 0, 12), // dividend reduces cost
		}

		positions := BuildPositions(transactions)

		require.Len(t, positions, 1)
		pos := positions[0]
		assert.Equal(t, "IE00TEST", pos.Key)
		assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(6)), "got quantity %s", pos.Quantity)
		// 1000 + 1 - 450 - 12
		assert.True(t, pos.CostBasis.Equal(decimal.NewFromInt(539)), "got cost basis %s", pos.CostBasis)
		assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), pos.FirstSeen)
	})

	t.Run("deposits do not touch positions", func(t *testing.T) {
		transactions := []model.Transaction{
			tx(1, model.TxBuy, "IE00TEST", 10, -1000),
			tx(2, model.TxDeposit, "IE00TEST", 0, 500),
		}

		positions := BuildPositions(transactions)

		require.Len(t, positions, 1)
		assert.True(t, positions[0].CostBasis.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("product name keys rows without isin", func(t *testing.T) {
		noIsin := tx(1, model.TxBuy, "", 1, -100)
		noIsin.Product = "Some Fund"

		positions := BuildPositions([]model.Transaction{noIsin})

		require.Len(t, positions, 1)
		assert.Equal(t, "Some Fund", positions[0].Key)
	})

	t.Run("first seen order preserved across keys", func(t *testing.T) {
		transactions := []model.Transaction{
			tx(3, model.TxBuy, "B", 1, -10),
			tx(1, model.TxBuy, "A", 1, -10),
			tx(5, model.TxBuy, "B", 1, -10),
		}

		positions := BuildPositions(transactions)

		require.Len(t, positions, 2)
		assert.Equal(t, "A", positions[0].Key)
		assert.Equal(t, "B", positions[1].Key)
	})
}

func TestQuantityEvents(t *testing.T) {
	transactions := []model.Transaction{
		tx(5, model.TxSell, "IE00TEST", -4, 450),
		tx(1, model.TxBuy, "IE00TEST", 10, -1000),
		tx(2, model.TxFee, "IE00TEST", 0, -1),      // no quantity effect
		tx(3, model.TxBuy, "OTHER", 5, -500),       // different instrument
		tx(4, model.TxDividend, "IE00TEST", 0, 12), // no quantity effect
	}

	events := QuantityEvents(transactions, "IE00TEST")

	require.Len(t, events, 2)
	assert.True(t, events[0].Delta.Equal(decimal.NewFromInt(10)))
	assert.True(t, events[1].Delta.Equal(decimal.NewFromInt(-4)))
	assert.True(t, events[0].Timestamp.Before(events[1].Timestamp))
}

func TestLedgerCSVRoundTrip(t *testing.T) {
	transactions := []model.Transaction{
		tx(1, model.TxBuy, "IE00TEST", 10, -1000),
		tx(2, model.TxSell, "IE00TEST", -4, 450.5),
	}

	encoded, err := EncodeLedger(transactions)
	require.NoError(t, err)

	decoded, err := DecodeLedger(bytes.NewReader(encoded))
	require.NoError(t, err)

	require.Len(t, decoded, 2)
	assert.Equal(t, transactions[0].ISIN, decoded[0].ISIN)
	assert.Equal(t, transactions[0].Type, decoded[0].Type)
	assert.True(t, transactions[0].Quantity.Equal(decoded[0].Quantity))
	assert.True(t, transactions[1].CashAmount.Equal(decoded[1].CashAmount))
	assert.True(t, transactions[1].Timestamp.Equal(decoded[1].Timestamp))
}

func TestDecodeLedgerEmptyFile(t *testing.T) {
	decoded, err := DecodeLedger(bytes.NewReader(nil))

	require.NoError(t, err)
	assert.Empty(t, decoded)
}
