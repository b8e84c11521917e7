package rebalance

import (
	"fmt"
	"sort"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// trades below this absolute value are not worth their fee
	minTradeValue = decimal.NewFromFloat(1.0)

	// targets may drift off 100 by this much before a warning
	targetSumTolerance = decimal.NewFromFloat(0.5)

	// relative slack allowed on the budget-fit correction
	budgetFitTolerance = decimal.NewFromFloat(0.01)
)

// PositionInput is one instrument's current state as seen by the planner.
// A zero price means the instrument could not be priced; its trade is
// forced to none regardless of target.
type PositionInput struct {
	Value       decimal.Decimal
	Price       decimal.Decimal
	IsCrypto    bool
	DisplayName string
}

type FeeSchedule struct {
	StockFeeEur  decimal.Decimal // flat fee per equity trade
	CryptoFeePct decimal.Decimal // percentage of executed value
}

type Planner struct {
	fees FeeSchedule
}

func NewPlanner(fees FeeSchedule) *Planner {
	return &Planner{fees: fees}
}

// Plan produces a discrete trade plan moving the portfolio toward the
// target allocation. Infeasible inputs degrade to warnings, never errors:
// planning always completes with best-effort numbers.
func (p *Planner) Plan(
	positions map[string]PositionInput,
	targets map[string]decimal.Decimal,
	budget decimal.Decimal,
	preventSell bool,
) model.RebalancePlan {
	plan := model.RebalancePlan{Budget: budget}

	keys := unionKeys(positions, targets)

	sumTargets := decimal.Zero
	for _, t := range targets {
		sumTargets = sumTargets.Add(t)
	}
	if sumTargets.Sub(hundred).Abs().GreaterThan(targetSumTolerance) {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("targets sum to %s%%, not 100%%", sumTargets.StringFixed(2)))
	}

	currentTotal := decimal.Zero
	for _, pos := range positions {
		currentTotal = currentTotal.Add(pos.Value)
	}
	newTotal := currentTotal.Add(budget)

	gaps := make(map[string]decimal.Decimal, len(keys))
	for _, key := range keys {
		targetValue := newTotal.Mul(targets[key]).Div(hundred)
		gaps[key] = targetValue.Sub(positions[key].Value)
	}

	if preventSell {
		totalPositive := decimal.Zero
		for _, gap := range gaps {
			if gap.IsPositive() {
				totalPositive = totalPositive.Add(gap)
			}
		}

		// sales are off the table, so positive gaps must fit the budget alone
		if totalPositive.GreaterThan(budget) && totalPositive.IsPositive() {
			factor := budget.Div(totalPositive)
			for key, gap := range gaps {
				if gap.IsPositive() {
					gaps[key] = gap.Mul(factor)
				} else {
					gaps[key] = decimal.Zero
				}
			}
			plan.Warnings = append(plan.Warnings, "budget below required buys, scaled plan to fit without selling")
		} else {
			for key, gap := range gaps {
				if gap.IsNegative() {
					gaps[key] = decimal.Zero
				}
			}
		}
	}

	for _, key := range keys {
		plan.Actions = append(plan.Actions, p.buildAction(key, positions[key], gaps[key]))
	}

	p.fitBudget(&plan)

	totalBuys, totalSells := cashFlows(plan.Actions)
	plan.TotalBuys = totalBuys
	plan.TotalSells = totalSells
	plan.NetCash = totalBuys.Sub(maxDecimal(decimal.Zero, totalSells))

	fillResultingPct(plan.Actions, positions)

	return plan
}

// buildAction converts one gap into a discrete trade. Crypto executes the
// gap exactly with fractional shares; everything else rounds to whole
// shares and recomputes the executed value from the rounded count.
func (p *Planner) buildAction(key string, pos PositionInput, gap decimal.Decimal) model.RebalanceAction {
	action := model.RebalanceAction{
		Key:         key,
		DisplayName: pos.DisplayName,
		Direction:   model.ActionNone,
		Price:       pos.Price,
		IsCrypto:    pos.IsCrypto,
	}
	if action.DisplayName == "" {
		action.DisplayName = key
	}

	// a plan can never recommend trading an instrument it cannot price
	if pos.Price.IsZero() || gap.IsZero() {
		return action
	}

	if pos.IsCrypto {
		executed := gap.Abs()
		if executed.LessThan(minTradeValue) {
			return action
		}
		action.Shares = gap.Div(pos.Price).Abs()
		action.Value = executed
	} else {
		shares := gap.Div(pos.Price).Round(0)
		if shares.IsZero() {
			return action
		}
		executed := shares.Abs().Mul(pos.Price)
		if executed.LessThan(minTradeValue) {
			return action
		}
		action.Shares = shares.Abs()
		action.Value = executed
	}

	if gap.IsPositive() {
		action.Direction = model.ActionBuy
	} else {
		action.Direction = model.ActionSell
	}

	action.Fee = p.fee(action)

	return action
}

func (p *Planner) fee(action model.RebalanceAction) decimal.Decimal {
	if action.Direction == model.ActionNone {
		return decimal.Zero
	}
	if action.IsCrypto {
		return action.Value.Mul(p.fees.CryptoFeePct).Div(hundred)
	}
	return p.fees.StockFeeEur
}

// fitBudget applies the lumpy correction: while the plan's net cash
// requirement exceeds the budget beyond tolerance, shave one share off the
// highest-priced reducible equity buy. High-priced instruments move the
// running total the most per share, so this converges fastest.
func (p *Planner) fitBudget(plan *model.RebalancePlan) {
	slack := plan.Budget.Mul(budgetFitTolerance).Abs()

	for {
		totalBuys, totalSells := cashFlows(plan.Actions)
		net := totalBuys.Sub(maxDecimal(decimal.Zero, totalSells))

		if net.Sub(plan.Budget).LessThanOrEqual(slack) {
			return
		}

		idx := -1
		for i, a := range plan.Actions {
			if a.Direction != model.ActionBuy || a.IsCrypto {
				continue
			}
			if a.Shares.LessThan(decimal.NewFromInt(1)) {
				continue
			}
			if idx == -1 || a.Price.GreaterThan(plan.Actions[idx].Price) {
				idx = i
			}
		}

		if idx == -1 {
			plan.Warnings = append(plan.Warnings, "could not fit plan within budget, no reducible buys left")
			return
		}

		a := &plan.Actions[idx]
		a.Shares = a.Shares.Sub(decimal.NewFromInt(1))
		if a.Shares.IsZero() {
			a.Direction = model.ActionNone
			a.Value = decimal.Zero
			a.Fee = decimal.Zero
			continue
		}
		a.Value = a.Shares.Mul(a.Price)
		a.Fee = p.fee(*a)
	}
}

// cashFlows sums buys including fees and sells after fees. None actions
// are excluded entirely.
func cashFlows(actions []model.RebalanceAction) (totalBuys, totalSells decimal.Decimal) {
	for _, a := range actions {
		switch a.Direction {
		case model.ActionBuy:
			totalBuys = totalBuys.Add(a.Value).Add(a.Fee)
		case model.ActionSell:
			totalSells = totalSells.Add(a.Value).Sub(a.Fee)
		}
	}
	return totalBuys, totalSells
}

// fillResultingPct computes each action's post-trade share of the realized
// total. Informational only: it never feeds back into the plan.
func fillResultingPct(actions []model.RebalanceAction, positions map[string]PositionInput) {
	realizedTotal := decimal.Zero
	for _, pos := range positions {
		realizedTotal = realizedTotal.Add(pos.Value)
	}
	for _, a := range actions {
		switch a.Direction {
		case model.ActionBuy:
			realizedTotal = realizedTotal.Add(a.Value)
		case model.ActionSell:
			realizedTotal = realizedTotal.Sub(a.Value)
		}
	}

	if !realizedTotal.IsPositive() {
		return
	}

	for i := range actions {
		a := &actions[i]
		resulting := positions[a.Key].Value
		switch a.Direction {
		case model.ActionBuy:
			resulting = resulting.Add(a.Value)
		case model.ActionSell:
			resulting = resulting.Sub(a.Value)
		}
		a.ResultingPct = resulting.Div(realizedTotal).Mul(hundred)
	}
}

func unionKeys(positions map[string]PositionInput, targets map[string]decimal.Decimal) []string {
	seen := make(map[string]bool, len(positions)+len(targets))
	keys := make([]string, 0, len(positions)+len(targets))

	for k := range positions {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range targets {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)
	return keys
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
