package portfolio

import (
	"sort"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
)

// BuildPositions folds an ordered ledger into one position per instrument
// key. Quantity is the running sum of trade quantities; cost basis reflects
// every cash-affecting event: gross buys and fees add, gross sells and
// dividends subtract. Positions are recomputed on every ledger reload and
// never persisted on their own.
func BuildPositions(transactions []model.Transaction) []model.Position {
	sorted := make([]model.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	byKey := make(map[string]*model.Position)
	order := make([]string, 0)

	for _, t := range sorted {
		key := t.Key()
		if key == "" {
			continue
		}

		pos, ok := byKey[key]
		if !ok {
			pos = &model.Position{
				Key:       key,
				Product:   t.Product,
				ISIN:      t.ISIN,
				FirstSeen: t.Timestamp,
			}
			byKey[key] = pos
			order = append(order, key)
		}

		switch t.Type {
		case model.TxBuy, model.TxSell:
			pos.Quantity = pos.Quantity.Add(t.Quantity)
			pos.CostBasis = pos.CostBasis.Sub(t.CashAmount)
		case model.TxFee, model.TxDividend:
			// cash amounts are signed: fees negative, dividends positive,
			// so subtracting covers both directions
			pos.CostBasis = pos.CostBasis.Sub(t.CashAmount)
		}

		if pos.Product == "" && t.Product != "" {
			pos.Product = t.Product
		}
	}

	positions := make([]model.Position, 0, len(order))
	for _, key := range order {
		positions = append(positions, *byKey[key])
	}

	return positions
}

// QuantityEvents extracts the signed quantity deltas of one instrument's
// trades, ordered by timestamp.
func QuantityEvents(transactions []model.Transaction, key string) []model.QuantityEvent {
	events := make([]model.QuantityEvent, 0)

	for _, t := range transactions {
		if t.Key() != key {
			continue
		}
		if t.Type != model.TxBuy && t.Type != model.TxSell {
			continue
		}
		if t.Quantity.IsZero() {
			continue
		}
		events = append(events, model.QuantityEvent{Timestamp: t.Timestamp, Delta: t.Quantity})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	return events
}
