package valuation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/m0rkovka/portfolio_pulse_bot/utils"
)

type HistoryProvider interface {
	History(ctx context.Context, ticker string, resolution model.Resolution, start time.Time) []model.PriceSample
}

// Reconstructor turns a position's trade events plus daily and intraday
// price history into one continuous per-instrument value series.
type Reconstructor struct {
	prices         HistoryProvider
	historyYears   int
	intradayWindow time.Duration
	nowFn          func() time.Time
}

func New(prices HistoryProvider, historyYears int, intradayWindow time.Duration) *Reconstructor {
	return &Reconstructor{
		prices:         prices,
		historyYears:   historyYears,
		intradayWindow: intradayWindow,
		nowFn:          time.Now,
	}
}

// QuantityStep is one step of the sparse quantity function: the cumulative
// quantity held from Timestamp onward.
type QuantityStep struct {
	Timestamp time.Time
	Quantity  float64
}

// Reconstruct builds the (timestamp, quantity, price, value) series for one
// instrument. The series spans from the history floor (or the earliest
// trade, if later) to now, sampled at the stitched price timestamps.
// Returns an empty series when neither resolution yields any sample; the
// caller treats that as "no history", not as an error.
func (r *Reconstructor) Reconstruct(ctx context.Context, events []model.QuantityEvent, ticker string) []model.ValuationPoint {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Reconstructor.Reconstruct"

	now := r.nowFn()
	floor := now.AddDate(-r.historyYears, 0, 0)
	intradayStart := now.Add(-r.intradayWindow)

	daily := r.prices.History(ctx, ticker, model.ResolutionDaily, floor)
	intraday := r.prices.History(ctx, ticker, model.ResolutionIntraday, intradayStart)

	stitched := Stitch(daily, intraday, intradayStart)
	if len(stitched) == 0 {
		slog.Warn("no price history for instrument", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
		return []model.ValuationPoint{}
	}

	steps := CollapseEvents(events)

	points := make([]model.ValuationPoint, 0, len(stitched))
	for _, sample := range stitched {
		quantity := quantityAt(steps, sample.Timestamp)
		points = append(points, model.ValuationPoint{
			Timestamp: sample.Timestamp,
			Quantity:  quantity,
			Price:     sample.Close,
			Value:     quantity * sample.Close,
		})
	}

	return points
}

// CollapseEvents merges same-instant deltas and computes the running
// cumulative sum, producing the sparse quantity step function anchored at
// trade instants. Recomputation is idempotent: the last step's quantity
// always equals the sum of all signed deltas.
func CollapseEvents(events []model.QuantityEvent) []QuantityStep {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]model.QuantityEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	steps := make([]QuantityStep, 0, len(sorted))
	running := 0.0

	for _, e := range sorted {
		delta, _ := e.Delta.Float64()
		running += delta

		if len(steps) > 0 && steps[len(steps)-1].Timestamp.Equal(e.Timestamp) {
			steps[len(steps)-1].Quantity = running
			continue
		}

		steps = append(steps, QuantityStep{Timestamp: e.Timestamp, Quantity: running})
	}

	return steps
}

// Stitch merges the two resolutions into one series: daily samples strictly
// older than the intraday window's start, then all intraday samples, sorted
// by timestamp with duplicate instants collapsed. On a tie the intraday
// sample wins — merging in timestamp order alone would let a stale daily
// midnight price mask a same-day intraday reading.
func Stitch(daily, intraday []model.PriceSample, intradayStart time.Time) []model.PriceSample {
	type sourced struct {
		model.PriceSample
		intraday bool
	}

	merged := make([]sourced, 0, len(daily)+len(intraday))
	for _, s := range daily {
		if s.Timestamp.Before(intradayStart) {
			merged = append(merged, sourced{PriceSample: s})
		}
	}
	for _, s := range intraday {
		merged = append(merged, sourced{PriceSample: s, intraday: true})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Timestamp.Equal(merged[j].Timestamp) {
			// intraday first, so the dedupe below keeps it
			return merged[i].intraday && !merged[j].intraday
		}
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})

	out := make([]model.PriceSample, 0, len(merged))
	for _, s := range merged {
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(s.Timestamp) {
			continue
		}
		out = append(out, s.PriceSample)
	}

	return out
}

// quantityAt forward-fills the step function: the quantity as of the most
// recent trade at or before ts, zero before the first trade.
func quantityAt(steps []QuantityStep, ts time.Time) float64 {
	idx := sort.Search(len(steps), func(i int) bool {
		return steps[i].Timestamp.After(ts)
	})
	if idx == 0 {
		return 0
	}
	return steps[idx-1].Quantity
}
