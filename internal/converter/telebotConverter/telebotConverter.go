package telebotConverter

import (
	"fmt"
	"strings"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/shopspring/decimal"
)

// PortfolioOverviewResponse renders the live portfolio view as a single
// Telegram message.
func PortfolioOverviewResponse(overview model.PortfolioOverview) string {
	var sb strings.Builder

	sb.WriteString("📊 Portfolio\n")
	sb.WriteString(fmt.Sprintf("💰 Total value: %s €\n", overview.TotalValue.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("%s Day change: %s €\n\n", changeEmoji(overview.TotalDayChange), overview.TotalDayChange.StringFixed(2)))

	for _, pos := range overview.Positions {
		sb.WriteString(fmt.Sprintf("▪️ %s\n", pos.DisplayName))

		if pos.Price.IsZero() {
			sb.WriteString(fmt.Sprintf("   qty: %s — no live price\n\n", pos.Quantity.String()))
			continue
		}

		sb.WriteString(fmt.Sprintf("   qty: %s × %s € = %s €\n", pos.Quantity.String(), pos.Price.StringFixed(2), pos.Value.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("   day: %s €", pos.DayChange.StringFixed(2)))
		if !pos.TargetPct.IsZero() {
			sb.WriteString(fmt.Sprintf(" | target: %s%%", pos.TargetPct.StringFixed(1)))
		}
		sb.WriteString("\n\n")
	}

	if len(overview.Unpriced) > 0 {
		sb.WriteString(fmt.Sprintf("⚠️ no live data for: %s\n", strings.Join(overview.Unpriced, ", ")))
	}

	return sb.String()
}

// RebalancePlanResponse renders a trade plan as a single Telegram message.
func RebalancePlanResponse(plan model.RebalancePlan) string {
	var sb strings.Builder

	sb.WriteString("⚖️ Rebalance plan\n")
	sb.WriteString(fmt.Sprintf("💵 Budget: %s €\n\n", plan.Budget.StringFixed(2)))

	for _, action := range plan.Actions {
		switch action.Direction {
		case model.ActionBuy:
			sb.WriteString(fmt.Sprintf("🟢 BUY %s\n", action.DisplayName))
		case model.ActionSell:
			sb.WriteString(fmt.Sprintf("🔴 SELL %s\n", action.DisplayName))
		default:
			continue
		}

		sb.WriteString(fmt.Sprintf("   %s pcs × %s € = %s €\n", action.Shares.String(), action.Price.StringFixed(2), action.Value.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("   fee: %s € | resulting: %s%%\n\n", action.Fee.StringFixed(2), action.ResultingPct.StringFixed(1)))
	}

	sb.WriteString(fmt.Sprintf("Total buys (incl. fees): %s €\n", plan.TotalBuys.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Total sells (after fees): %s €\n", plan.TotalSells.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Net cash required: %s €\n", plan.NetCash.StringFixed(2)))

	for _, warning := range plan.Warnings {
		sb.WriteString(fmt.Sprintf("\n⚠️ %s", warning))
	}

	return sb.String()
}

// ValuationHistoryResponse renders a compact summary of a value series:
// first and last points plus the running min and max.
func ValuationHistoryResponse(key string, points []model.ValuationPoint) string {
	if len(points) == 0 {
		return fmt.Sprintf("no history for %s", key)
	}

	first := points[0]
	last := points[len(points)-1]

	minVal, maxVal := first.Value, first.Value
	for _, p := range points {
		if p.Value < minVal {
			minVal = p.Value
		}
		if p.Value > maxVal {
			maxVal = p.Value
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📈 %s\n", key))
	sb.WriteString(fmt.Sprintf("from %s: %.2f €\n", first.Timestamp.Format("2006-01-02"), first.Value))
	sb.WriteString(fmt.Sprintf("to %s: %.2f €\n", last.Timestamp.Format("2006-01-02 15:04"), last.Value))
	sb.WriteString(fmt.Sprintf("min: %.2f € | max: %.2f €\n", minVal, maxVal))
	sb.WriteString(fmt.Sprintf("points: %d", len(points)))

	return sb.String()
}

// FeesResponse renders the current fee schedule.
func FeesResponse(stockFeeEur, cryptoFeePct decimal.Decimal) string {
	return fmt.Sprintf(
		"⚙️ Fees\nstock: %s € per trade\ncrypto: %s%% of executed value",
		stockFeeEur.StringFixed(2),
		cryptoFeePct.StringFixed(2),
	)
}

func changeEmoji(change decimal.Decimal) string {
	if change.IsNegative() {
		return "📉"
	}
	return "📈"
}
