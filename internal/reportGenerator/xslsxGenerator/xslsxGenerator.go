package xslsxGenerator

import (
	"context"
	"log/slog"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/m0rkovka/portfolio_pulse_bot/utils"
	"github.com/xuri/excelize/v2"
)

const (
	holdingsSheet  = "Holdings"
	rebalanceSheet = "Rebalance plan"
)

type XSLSXGenerator struct{}

func New() *XSLSXGenerator {
	return &XSLSXGenerator{}
}

// Generate renders the portfolio overview and the current rebalance plan
// into one workbook.
func (g *XSLSXGenerator) Generate(ctx context.Context, overview model.PortfolioOverview, plan model.RebalancePlan) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.Generate"

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if err = g.fillHoldingsSheet(f, overview); err != nil {
		slog.Error("got error while filling holdings sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	if err = g.fillRebalanceSheet(f, plan); err != nil {
		slog.Error("got error while filling rebalance sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XSLSXGenerator) fillHoldingsSheet(f *excelize.File, overview model.PortfolioOverview) error {
	if _, err := f.NewSheet(holdingsSheet); err != nil {
		return err
	}

	headers := []string{"Instrument", "Ticker", "Quantity", "Price", "Value", "Day change", "Target %", "Cost basis"}
	if err := g.writeHeaderRow(f, holdingsSheet, headers); err != nil {
		return err
	}

	row := 2
	for _, pos := range overview.Positions {
		values := []any{
			pos.DisplayName,
			pos.Ticker,
			pos.Quantity.InexactFloat64(),
			pos.Price.InexactFloat64(),
			pos.Value.InexactFloat64(),
			pos.DayChange.InexactFloat64(),
			pos.TargetPct.InexactFloat64(),
			pos.CostBasis.InexactFloat64(),
		}
		if err := g.writeRow(f, holdingsSheet, row, values); err != nil {
			return err
		}
		row++
	}

	row++
	if err := g.writeRow(f, holdingsSheet, row, []any{"Total", "", "", "", overview.TotalValue.InexactFloat64(), overview.TotalDayChange.InexactFloat64()}); err != nil {
		return err
	}

	for _, key := range overview.Unpriced {
		row++
		if err := g.writeRow(f, holdingsSheet, row, []any{key, "no live data"}); err != nil {
			return err
		}
	}

	return nil
}

func (g *XSLSXGenerator) fillRebalanceSheet(f *excelize.File, plan model.RebalancePlan) error {
	if _, err := f.NewSheet(rebalanceSheet); err != nil {
		return err
	}

	headers := []string{"Instrument", "Action", "Shares", "Price", "Value", "Fee", "Resulting %"}
	if err := g.writeHeaderRow(f, rebalanceSheet, headers); err != nil {
		return err
	}

	row := 2
	for _, action := range plan.Actions {
		values := []any{
			action.DisplayName,
			string(action.Direction),
			action.Shares.InexactFloat64(),
			action.Price.InexactFloat64(),
			action.Value.InexactFloat64(),
			action.Fee.InexactFloat64(),
			action.ResultingPct.InexactFloat64(),
		}
		if err := g.writeRow(f, rebalanceSheet, row, values); err != nil {
			return err
		}
		row++
	}

	row++
	summary := [][]any{
		{"Budget", plan.Budget.InexactFloat64()},
		{"Total buys (incl. fees)", plan.TotalBuys.InexactFloat64()},
		{"Total sells (after fees)", plan.TotalSells.InexactFloat64()},
		{"Net cash required", plan.NetCash.InexactFloat64()},
	}
	for _, line := range summary {
		if err := g.writeRow(f, rebalanceSheet, row, line); err != nil {
			return err
		}
		row++
	}

	for _, warning := range plan.Warnings {
		if err := g.writeRow(f, rebalanceSheet, row, []any{"Warning", warning}); err != nil {
			return err
		}
		row++
	}

	return nil
}

func (g *XSLSXGenerator) writeHeaderRow(f *excelize.File, sheet string, headers []string) error {
	styleID, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return err
	}

	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err = f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
		if err = f.SetCellStyle(sheet, cell, cell, styleID); err != nil {
			return err
		}
	}

	return nil
}

func (g *XSLSXGenerator) writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
