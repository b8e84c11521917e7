package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistoryProvider struct {
	daily    []model.PriceSample
	intraday []model.PriceSample
}

func (f *fakeHistoryProvider) History(_ context.Context, _ string, resolution model.Resolution, _ time.Time) []model.PriceSample {
	if resolution == model.ResolutionDaily {
		return f.daily
	}
	return f.intraday
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestCollapseEvents(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, CollapseEvents(nil))
	})

	t.Run("cumulative sum over sorted events", func(t *testing.T) {
		events := []model.QuantityEvent{
			{Timestamp: day(5), Delta: decimal.NewFromInt(5)},
			{Timestamp: day(2), Delta: decimal.NewFromInt(5)},
			{Timestamp: day(8), Delta: decimal.NewFromInt(-2)},
		}

		steps := CollapseEvents(events)

		require.Len(t, steps, 3)
		assert.Equal(t, day(2), steps[0].Timestamp)
		assert.Equal(t, 5.0, steps[0].Quantity)
		assert.Equal(t, 10.0, steps[1].Quantity)
		assert.Equal(t, 8.0, steps[2].Quantity)
	})

	t.Run("same instant deltas merge into one step", func(t *testing.T) {
		events := []model.QuantityEvent{
			{Timestamp: day(3), Delta: decimal.NewFromInt(2)},
			{Timestamp: day(3), Delta: decimal.NewFromInt(3)},
		}

		steps := CollapseEvents(events)

		require.Len(t, steps, 1)
		assert.Equal(t, 5.0, steps[0].Quantity)
	})

	t.Run("last step equals sum of all deltas", func(t *testing.T) {
		events := []model.QuantityEvent{
			{Timestamp: day(1), Delta: decimal.NewFromFloat(1.5)},
			{Timestamp: day(2), Delta: decimal.NewFromFloat(-0.5)},
			{Timestamp: day(2), Delta: decimal.NewFromFloat(2)},
			{Timestamp: day(9), Delta: decimal.NewFromFloat(-3)},
		}

		steps := CollapseEvents(events)

		require.NotEmpty(t, steps)
		assert.InDelta(t, 0.0, steps[len(steps)-1].Quantity, 1e-9)
	})
}

func TestStitch(t *testing.T) {
	t.Run("daily strictly before window start, then intraday", func(t *testing.T) {
		start := day(10)
		daily := []model.PriceSample{
			{Timestamp: day(8), Close: 100},
			{Timestamp: day(10), Close: 101}, // not strictly before start
			{Timestamp: day(11), Close: 102},
		}
		intraday := []model.PriceSample{
			{Timestamp: day(10).Add(9 * time.Hour), Close: 103},
			{Timestamp: day(11).Add(9 * time.Hour), Close: 104},
		}

		out := Stitch(daily, intraday, start)

		require.Len(t, out, 3)
		assert.Equal(t, 100.0, out[0].Close)
		assert.Equal(t, 103.0, out[1].Close)
		assert.Equal(t, 104.0, out[2].Close)
	})

	t.Run("intraday wins on duplicate timestamp", func(t *testing.T) {
		ts := day(5)
		daily := []model.PriceSample{{Timestamp: ts, Close: 100}}
		intraday := []model.PriceSample{{Timestamp: ts, Close: 200}}

		out := Stitch(daily, intraday, day(20))

		require.Len(t, out, 1)
		assert.Equal(t, 200.0, out[0].Close)
	})

	t.Run("both empty", func(t *testing.T) {
		assert.Empty(t, Stitch(nil, nil, day(1)))
	})
}

func TestReconstruct(t *testing.T) {
	daily := make([]model.PriceSample, 0, 15)
	for d := 1; d <= 15; d++ {
		daily = append(daily, model.PriceSample{Timestamp: day(d), Close: float64(10 + d)})
	}

	newReconstructor := func(provider HistoryProvider, intradayWindow time.Duration) *Reconstructor {
		r := New(provider, 5, intradayWindow)
		r.nowFn = func() time.Time { return day(15).Add(12 * time.Hour) }
		return r
	}

	t.Run("quantity forward-filled onto price timestamps", func(t *testing.T) {
		// window shorter than the last candle gap keeps every daily sample
		r := newReconstructor(&fakeHistoryProvider{daily: daily}, time.Hour)

		events := []model.QuantityEvent{
			{Timestamp: day(2), Delta: decimal.NewFromInt(5)},
			{Timestamp: day(5), Delta: decimal.NewFromInt(5)},
			{Timestamp: day(8), Delta: decimal.NewFromInt(-2)},
		}

		points := r.Reconstruct(context.Background(), events, "VWCE.DE")

		require.Len(t, points, 15)

		byDay := func(d int) model.ValuationPoint { return points[d-1] }

		assert.Equal(t, 0.0, byDay(1).Quantity)
		assert.Equal(t, 5.0, byDay(2).Quantity)
		assert.Equal(t, 5.0, byDay(3).Quantity)
		assert.Equal(t, 10.0, byDay(5).Quantity)
		assert.Equal(t, 8.0, byDay(12).Quantity)
		assert.Equal(t, 8.0*float64(10+12), byDay(12).Value)
	})

	t.Run("zero quantity rows retained", func(t *testing.T) {
		r := newReconstructor(&fakeHistoryProvider{daily: daily}, time.Hour)

		points := r.Reconstruct(context.Background(), nil, "VWCE.DE")

		require.Len(t, points, 15)
		for _, p := range points {
			assert.Equal(t, 0.0, p.Quantity)
			assert.Equal(t, 0.0, p.Value)
		}
	})

	t.Run("no samples yields empty series", func(t *testing.T) {
		r := newReconstructor(&fakeHistoryProvider{}, time.Hour)

		points := r.Reconstruct(context.Background(), []model.QuantityEvent{
			{Timestamp: day(1), Delta: decimal.NewFromInt(1)},
		}, "UNKNOWN")

		assert.Empty(t, points)
	})

	t.Run("intraday overrides same day tail", func(t *testing.T) {
		intraday := []model.PriceSample{
			{Timestamp: day(14).Add(10 * time.Hour), Close: 500},
			{Timestamp: day(15).Add(10 * time.Hour), Close: 600},
		}
		r := newReconstructor(&fakeHistoryProvider{daily: daily, intraday: intraday}, 7*24*time.Hour)

		events := []model.QuantityEvent{{Timestamp: day(1), Delta: decimal.NewFromInt(2)}}

		points := r.Reconstruct(context.Background(), events, "VWCE.DE")

		require.NotEmpty(t, points)
		last := points[len(points)-1]
		assert.Equal(t, 600.0, last.Price)
		assert.Equal(t, 1200.0, last.Value)
	})
}
