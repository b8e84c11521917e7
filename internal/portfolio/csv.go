package portfolio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/shopspring/decimal"
)

var csvHeader = []string{"timestamp", "product", "isin", "type", "quantity", "cash_amount", "currency"}

// EncodeLedger renders the normalized ledger as the master CSV mirrored to
// cloud storage.
func EncodeLedger(transactions []model.Transaction) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, t := range transactions {
		record := []string{
			t.Timestamp.UTC().Format(time.RFC3339),
			t.Product,
			t.ISIN,
			string(t.Type),
			t.Quantity.String(),
			t.CashAmount.String(),
			t.Currency,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeLedger parses the master CSV back into ledger rows. The file is
// written by EncodeLedger, so the column set is fixed; a malformed row is
// an error, not a skip.
func DecodeLedger(r io.Reader) ([]model.Transaction, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.Transaction{}, nil
		}
		return nil, err
	}

	if len(header) != len(csvHeader) {
		return nil, fmt.Errorf("unexpected header length %d", len(header))
	}

	transactions := make([]model.Transaction, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		ts, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", record[0], err)
		}

		quantity, err := decimal.NewFromString(record[4])
		if err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", record[4], err)
		}

		cashAmount, err := decimal.NewFromString(record[5])
		if err != nil {
			return nil, fmt.Errorf("parse cash_amount %q: %w", record[5], err)
		}

		transactions = append(transactions, model.Transaction{
			Timestamp:  ts,
			Product:    record[1],
			ISIN:       record[2],
			Type:       model.TxType(record[3]),
			Quantity:   quantity,
			CashAmount: cashAmount,
			Currency:   record[6],
		})
	}

	return transactions, nil
}
