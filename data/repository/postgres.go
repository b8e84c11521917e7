package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/m0rkovka/portfolio_pulse_bot/config"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model/dbModel"
	"github.com/m0rkovka/portfolio_pulse_bot/utils"
	"github.com/shopspring/decimal"
)

type Postgres struct {
	db  *sqlx.DB
	cfg *config.Config
}

func NewPostgres(cfg *config.Config, db *sqlx.DB) *Postgres {
	return &Postgres{db: db, cfg: cfg}
}

// ReplaceTransactions swaps the whole ledger for the given rows in one
// transaction. The ledger is always reloaded as a whole from the master
// file, so partial updates are never needed.
func (r *Postgres) ReplaceTransactions(ctx context.Context, transactions []model.Transaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("ReplaceTransactions start", slog.String("rqID", rqID), slog.Int("rows", len(transactions)))

	defer func() {
		if err != nil {
			slog.Error("ReplaceTransactions failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("ReplaceTransactions completed", slog.String("rqID", rqID))
		}
	}()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return err
	}

	if len(transactions) > 0 {
		sb := strings.Builder{}
		args := make([]any, 0, len(transactions)*7)

		sb.WriteString(`INSERT INTO transactions (ts, product, isin, tx_type, quantity, cash_amount, currency) VALUES `)

		for i, t := range transactions {
			args = append(args, t.Timestamp, t.Product, t.ISIN, string(t.Type), t.Quantity, t.CashAmount, t.Currency)

			start := i*7 + 1
			sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				start, start+1, start+2, start+3, start+4, start+5, start+6,
			))

			if i < len(transactions)-1 {
				sb.WriteString(",")
			}
		}

		if _, err = tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Postgres) GetTransactions(ctx context.Context) (transactions []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT ts, product, isin, tx_type, quantity, cash_amount, currency FROM transactions ORDER BY ts, tx_id`

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetTransactions failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransactions completed", slog.String("rqID", rqID), slog.Int("rows", len(transactions)))
		}
	}()

	rows := make([]dbModel.Transaction, 0)
	if err = r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	transactions = make([]model.Transaction, 0, len(rows))
	for _, row := range rows {
		transactions = append(transactions, model.Transaction{
			Timestamp:  row.Timestamp,
			Product:    row.Product,
			ISIN:       row.ISIN,
			Type:       model.TxType(row.Type),
			Quantity:   row.Quantity,
			CashAmount: row.CashAmount,
			Currency:   row.Currency,
		})
	}

	return transactions, nil
}

// UpsertAsset updates an asset's target percentage and/or display name,
// creating the row when missing. Nil arguments leave the column untouched.
func (r *Postgres) UpsertAsset(ctx context.Context, key string, targetPct *decimal.Decimal, displayName *string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO assets (asset_key, target_pct, display_name)
		VALUES ($1, COALESCE($2, 0), COALESCE($3, ''))
		ON CONFLICT (asset_key) DO UPDATE SET
			target_pct = COALESCE($2, assets.target_pct),
			display_name = COALESCE($3, assets.display_name)
	`

	slog.Debug("UpsertAsset start", slog.String("rqID", rqID), slog.String("key", key))
	defer func() {
		if err != nil {
			slog.Error("UpsertAsset failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertAsset completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.db.ExecContext(ctx, query, key, targetPct, displayName)
	return err
}

func (r *Postgres) GetAssets(ctx context.Context) (assets []dbModel.Asset, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT asset_key, target_pct, display_name FROM assets ORDER BY asset_key`

	slog.Debug("GetAssets start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetAssets failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetAssets completed", slog.String("rqID", rqID), slog.Int("rows", len(assets)))
		}
	}()

	assets = make([]dbModel.Asset, 0)
	if err = r.db.SelectContext(ctx, &assets, query); err != nil {
		return nil, err
	}

	return assets, nil
}

func (r *Postgres) DeleteAsset(ctx context.Context, key string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM assets WHERE asset_key = $1`

	slog.Debug("DeleteAsset start", slog.String("rqID", rqID), slog.String("key", key))
	defer func() {
		if err != nil {
			slog.Error("DeleteAsset failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteAsset completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.db.ExecContext(ctx, query, key)
	return err
}

func (r *Postgres) GetSettings(ctx context.Context) (settings dbModel.Settings, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT stock_fee_eur, crypto_fee_pct FROM settings LIMIT 1`

	slog.Debug("GetSettings start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetSettings failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetSettings completed", slog.String("rqID", rqID))
		}
	}()

	err = r.db.GetContext(ctx, &settings, query)
	if errors.Is(err, sql.ErrNoRows) {
		return dbModel.Settings{}, ErrNotFound
	}
	if err != nil {
		return dbModel.Settings{}, err
	}

	return settings, nil
}

func (r *Postgres) UpdateSettings(ctx context.Context, stockFeeEur, cryptoFeePct *decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		UPDATE settings SET
			stock_fee_eur = COALESCE($1, stock_fee_eur),
			crypto_fee_pct = COALESCE($2, crypto_fee_pct)
	`

	slog.Debug("UpdateSettings start", slog.String("rqID", rqID))
	defer func() {
		if err != nil {
			slog.Error("UpdateSettings failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateSettings completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.db.ExecContext(ctx, query, stockFeeEur, cryptoFeePct)
	return err
}
