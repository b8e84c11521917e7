package rebalance

import (
	"testing"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanner() *Planner {
	return NewPlanner(FeeSchedule{
		StockFeeEur:  decimal.NewFromFloat(1.0),
		CryptoFeePct: decimal.NewFromFloat(0.29),
	})
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func findAction(t *testing.T, plan model.RebalancePlan, key string) model.RebalanceAction {
	t.Helper()
	for _, a := range plan.Actions {
		if a.Key == key {
			return a
		}
	}
	t.Fatalf("action %q not found in plan", key)
	return model.RebalanceAction{}
}

func TestPlanBalancedPortfolio(t *testing.T) {
	positions := map[string]PositionInput{
		"A": {Value: dec(500), Price: dec(50)},
		"B": {Value: dec(500), Price: dec(25)},
	}
	targets := map[string]decimal.Decimal{
		"A": dec(50),
		"B": dec(50),
	}

	plan := newTestPlanner().Plan(positions, targets, decimal.Zero, false)

	require.Len(t, plan.Actions, 2)
	for _, a := range plan.Actions {
		assert.Equal(t, model.ActionNone, a.Direction)
	}
	assert.True(t, plan.TotalBuys.IsZero())
	assert.True(t, plan.TotalSells.IsZero())
	assert.Empty(t, plan.Warnings)
}

func TestPlanMissingPriceForcesNone(t *testing.T) {
	positions := map[string]PositionInput{
		"A": {Value: dec(0), Price: decimal.Zero},
	}
	targets := map[string]decimal.Decimal{"A": dec(100)}

	plan := newTestPlanner().Plan(positions, targets, dec(1000), false)

	action := findAction(t, plan, "A")
	assert.Equal(t, model.ActionNone, action.Direction)
	assert.True(t, action.Shares.IsZero())
}

func TestPlanTargetSumWarning(t *testing.T) {
	positions := map[string]PositionInput{
		"A": {Value: dec(100), Price: dec(10)},
	}
	targets := map[string]decimal.Decimal{"A": dec(90)}

	plan := newTestPlanner().Plan(positions, targets, decimal.Zero, false)

	require.NotEmpty(t, plan.Warnings)
	assert.Contains(t, plan.Warnings[0], "targets sum to")
}

func TestPlanWholeShareRounding(t *testing.T) {
	positions := map[string]PositionInput{
		"A": {Value: dec(0), Price: dec(30)},
	}
	targets := map[string]decimal.Decimal{"A": dec(100)}

	plan := newTestPlanner().Plan(positions, targets, dec(100), false)

	action := findAction(t, plan, "A")
	assert.Equal(t, model.ActionBuy, action.Direction)
	assert.True(t, action.Shares.Equal(dec(3)), "got %s shares", action.Shares)
	assert.True(t, action.Value.Equal(dec(90)), "got value %s", action.Value)
	assert.True(t, action.Fee.Equal(dec(1)))
}

func TestPlanMinTradeFloor(t *testing.T) {
	positions := map[string]PositionInput{
		"A": {Value: dec(99.7), Price: dec(0.5)},
		"B": {Value: dec(0.3), Price: dec(10)},
	}
	targets := map[string]decimal.Decimal{
		"A": dec(100),
		"B": dec(0),
	}

	plan := newTestPlanner().Plan(positions, targets, decimal.Zero, false)

	// A's rounded trade executes below 1 EUR, B's rounds to zero shares
	assert.Equal(t, model.ActionNone, findAction(t, plan, "A").Direction)
	assert.Equal(t, model.ActionNone, findAction(t, plan, "B").Direction)
}

func TestPlanCryptoFractionalShares(t *testing.T) {
	positions := map[string]PositionInput{
		"BTC": {Value: dec(0), Price: dec(20000), IsCrypto: true},
	}
	targets := map[string]decimal.Decimal{"BTC": dec(100)}

	plan := newTestPlanner().Plan(positions, targets, dec(1000), false)

	action := findAction(t, plan, "BTC")
	assert.Equal(t, model.ActionBuy, action.Direction)
	assert.True(t, action.Shares.Equal(dec(0.05)), "got %s shares", action.Shares)
	assert.True(t, action.Value.Equal(dec(1000)))
	assert.True(t, action.Fee.Equal(dec(2.9)), "got fee %s", action.Fee)
}

func TestPlanPreventSell(t *testing.T) {
	positions := map[string]PositionInput{
		"A": {Value: dec(1000), Price: dec(100)},
		"B": {Value: dec(0), Price: dec(5)},
	}
	targets := map[string]decimal.Decimal{
		"A": dec(0),
		"B": dec(100),
	}

	plan := newTestPlanner().Plan(positions, targets, dec(50), true)

	for _, a := range plan.Actions {
		assert.NotEqual(t, model.ActionSell, a.Direction)
	}

	// buys scaled to the budget, then trimmed to fit it with fees
	actionB := findAction(t, plan, "B")
	assert.Equal(t, model.ActionBuy, actionB.Direction)
	assert.True(t, actionB.Shares.Equal(dec(9)), "got %s shares", actionB.Shares)

	require.NotEmpty(t, plan.Warnings)
	assert.True(t, plan.NetCash.LessThanOrEqual(dec(50).Add(dec(0.5))))
}

func TestPlanBudgetFitCorrection(t *testing.T) {
	// B cannot be priced so its whole gap lands on A as a buy far above the
	// budget; the correction must shave A down until the plan fits
	positions := map[string]PositionInput{
		"A": {Value: dec(0), Price: dec(90)},
		"B": {Value: dec(900), Price: decimal.Zero},
	}
	targets := map[string]decimal.Decimal{
		"A": dec(100),
		"B": dec(0),
	}

	plan := newTestPlanner().Plan(positions, targets, dec(100), false)

	actionA := findAction(t, plan, "A")
	assert.Equal(t, model.ActionBuy, actionA.Direction)
	assert.True(t, actionA.Shares.Equal(dec(1)), "got %s shares", actionA.Shares)

	slack := dec(100).Mul(dec(0.01))
	assert.True(t, plan.NetCash.Sub(dec(100)).LessThanOrEqual(slack), "net cash %s exceeds budget", plan.NetCash)
}

func TestPlanSellsFundBuys(t *testing.T) {
	positions := map[string]PositionInput{
		"A": {Value: dec(1000), Price: dec(100)},
		"B": {Value: dec(0), Price: dec(100)},
	}
	targets := map[string]decimal.Decimal{
		"A": dec(50),
		"B": dec(50),
	}

	// a 2 EUR budget covers both flat fees so the swap is not trimmed
	plan := newTestPlanner().Plan(positions, targets, dec(2), false)

	actionA := findAction(t, plan, "A")
	actionB := findAction(t, plan, "B")

	assert.Equal(t, model.ActionSell, actionA.Direction)
	assert.Equal(t, model.ActionBuy, actionB.Direction)
	assert.True(t, actionA.Shares.Equal(dec(5)))
	assert.True(t, actionB.Shares.Equal(dec(5)))

	// net cash = buys including fees minus sell proceeds after fees
	expectedNet := dec(501).Sub(dec(499))
	assert.True(t, plan.NetCash.Equal(expectedNet), "got net cash %s", plan.NetCash)
}

func TestPlanResultingPct(t *testing.T) {
	positions := map[string]PositionInput{
		"A": {Value: dec(1000), Price: dec(100)},
		"B": {Value: dec(0), Price: dec(100)},
	}
	targets := map[string]decimal.Decimal{
		"A": dec(50),
		"B": dec(50),
	}

	plan := newTestPlanner().Plan(positions, targets, dec(2), false)

	actionA := findAction(t, plan, "A")
	actionB := findAction(t, plan, "B")

	assert.True(t, actionA.ResultingPct.Equal(dec(50)), "got %s", actionA.ResultingPct)
	assert.True(t, actionB.ResultingPct.Equal(dec(50)), "got %s", actionB.ResultingPct)
}
