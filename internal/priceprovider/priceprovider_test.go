package priceprovider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m0rkovka/portfolio_pulse_bot/config"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarketDataApi struct {
	quotes       map[string]float64
	chartSamples []model.PriceSample

	quoteCalls int
	chartCalls int
}

func (a *fakeMarketDataApi) GetQuote(_ context.Context, ticker string) (float64, error) {
	a.quoteCalls++
	price, ok := a.quotes[ticker]
	if !ok {
		return 0, errors.New("not found")
	}
	return price, nil
}

func (a *fakeMarketDataApi) GetChart(_ context.Context, _ string, _ model.Resolution, _, _ time.Time) ([]model.PriceSample, error) {
	a.chartCalls++
	if len(a.chartSamples) == 0 {
		return nil, errors.New("not found")
	}
	return a.chartSamples, nil
}

func testConfig() *config.Config {
	return &config.Config{
		API: config.API{Timeout: time.Second},
		Cache: config.Cache{
			LatestPriceTTL: 60 * time.Second,
			PrevCloseTTL:   6 * time.Hour,
			SessionOpenTTL: time.Hour,
			HistoryTTL:     time.Hour,
		},
		Market: config.Market{
			Timezone:         "Europe/Berlin",
			OpenHour:         8,
			CloseHour:        22,
			RefreshInterval:  30 * time.Second,
			OffHoursInterval: 5 * time.Minute,
		},
	}
}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func TestLatestCachesWithinTTL(t *testing.T) {
	api := &fakeMarketDataApi{quotes: map[string]float64{"VWCE.DE": 105.5}}
	p := New(testConfig(), api)

	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	p.nowFn = func() time.Time { return now }

	assert.Equal(t, 105.5, p.Latest(context.Background(), "VWCE.DE"))
	assert.Equal(t, 105.5, p.Latest(context.Background(), "VWCE.DE"))
	assert.Equal(t, 1, api.quoteCalls)

	// past the TTL an unwatched ticker is refetched synchronously
	now = now.Add(61 * time.Second)
	api.quotes["VWCE.DE"] = 106.0

	assert.Equal(t, 106.0, p.Latest(context.Background(), "VWCE.DE"))
	assert.Equal(t, 2, api.quoteCalls)
}

func TestLatestStaleWatchedTickerDoesNotBlock(t *testing.T) {
	api := &fakeMarketDataApi{quotes: map[string]float64{"VWCE.DE": 105.5}}
	p := New(testConfig(), api)

	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	p.nowFn = func() time.Time { return now }

	require.Equal(t, 105.5, p.Latest(context.Background(), "VWCE.DE"))

	p.Watch("VWCE.DE")
	now = now.Add(time.Hour)
	api.quotes["VWCE.DE"] = 200.0

	// stale value comes back immediately, refreshing is the worker's job
	assert.Equal(t, 105.5, p.Latest(context.Background(), "VWCE.DE"))
	assert.Equal(t, 1, api.quoteCalls)
}

func TestLatestUnknownTickerIsZero(t *testing.T) {
	api := &fakeMarketDataApi{quotes: map[string]float64{}}
	p := New(testConfig(), api)

	assert.Equal(t, 0.0, p.Latest(context.Background(), "NOPE"))
	assert.Equal(t, 0.0, p.Latest(context.Background(), ""))
}

func TestPreviousClose(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, loc)

	t.Run("second to last daily candle", func(t *testing.T) {
		api := &fakeMarketDataApi{chartSamples: []model.PriceSample{
			{Timestamp: now.AddDate(0, 0, -3), Close: 98},
			{Timestamp: now.AddDate(0, 0, -2), Close: 99},
			{Timestamp: now.AddDate(0, 0, -1), Close: 101},
			{Timestamp: now, Close: 102},
		}}
		p := New(testConfig(), api)
		p.nowFn = func() time.Time { return now }

		assert.Equal(t, 101.0, p.PreviousClose(context.Background(), "VWCE.DE"))
	})

	t.Run("single candle falls back to itself", func(t *testing.T) {
		api := &fakeMarketDataApi{chartSamples: []model.PriceSample{
			{Timestamp: now, Close: 102},
		}}
		p := New(testConfig(), api)
		p.nowFn = func() time.Time { return now }

		assert.Equal(t, 102.0, p.PreviousClose(context.Background(), "VWCE.DE"))
	})

	t.Run("feed failure yields zero", func(t *testing.T) {
		api := &fakeMarketDataApi{}
		p := New(testConfig(), api)
		p.nowFn = func() time.Time { return now }

		assert.Equal(t, 0.0, p.PreviousClose(context.Background(), "VWCE.DE"))
	})
}

func TestSessionOpenReference(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, loc)

	api := &fakeMarketDataApi{chartSamples: []model.PriceSample{
		{Timestamp: time.Date(2026, 3, 4, 23, 0, 0, 0, loc), Close: 50000},
		{Timestamp: time.Date(2026, 3, 5, 1, 0, 0, 0, loc), Close: 50500},
		{Timestamp: time.Date(2026, 3, 5, 9, 0, 0, 0, loc), Close: 51000},
	}}
	p := New(testConfig(), api)
	p.nowFn = func() time.Time { return now }

	// first sample at or after local midnight, not the previous close
	assert.Equal(t, 50500.0, p.SessionOpenReference(context.Background(), "BTC-EUR"))
}

func TestHistoryNormalizesDailyCandles(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2026, 3, 6, 12, 0, 0, 0, loc)

	api := &fakeMarketDataApi{chartSamples: []model.PriceSample{
		{Timestamp: time.Date(2026, 3, 4, 9, 0, 0, 0, loc), Close: 100},
		{Timestamp: time.Date(2026, 3, 5, 9, 0, 0, 0, loc), Close: 101},
		{Timestamp: time.Date(2026, 3, 5, 17, 30, 0, 0, loc), Close: 102},
	}}
	p := New(testConfig(), api)
	p.nowFn = func() time.Time { return now }

	samples := p.History(context.Background(), "VWCE.DE", model.ResolutionDaily, now.AddDate(0, 0, -7))

	require.Len(t, samples, 2)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, loc), samples[0].Timestamp)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, loc), samples[1].Timestamp)
	// the later candle of the same day wins after truncation
	assert.Equal(t, 102.0, samples[1].Close)
}

func TestHistoryCachesWithinTTL(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2026, 3, 6, 12, 0, 0, 0, loc)

	api := &fakeMarketDataApi{chartSamples: []model.PriceSample{
		{Timestamp: time.Date(2026, 3, 4, 9, 0, 0, 0, loc), Close: 100},
	}}
	p := New(testConfig(), api)
	p.nowFn = func() time.Time { return now }

	start := now.AddDate(0, 0, -7)
	p.History(context.Background(), "VWCE.DE", model.ResolutionDaily, start)
	p.History(context.Background(), "VWCE.DE", model.ResolutionDaily, start)

	assert.Equal(t, 1, api.chartCalls)
}

func TestPollInterval(t *testing.T) {
	loc := berlin(t)
	p := New(testConfig(), &fakeMarketDataApi{})

	tests := []struct {
		name     string
		now      time.Time
		expected time.Duration
	}{
		{name: "weekday inside trading hours", now: time.Date(2026, 3, 3, 10, 0, 0, 0, loc), expected: 30 * time.Second},
		{name: "weekday before open", now: time.Date(2026, 3, 3, 6, 0, 0, 0, loc), expected: 5 * time.Minute},
		{name: "weekday after close", now: time.Date(2026, 3, 3, 23, 0, 0, 0, loc), expected: 5 * time.Minute},
		{name: "saturday", now: time.Date(2026, 3, 7, 12, 0, 0, 0, loc), expected: 5 * time.Minute},
		{name: "sunday", now: time.Date(2026, 3, 8, 12, 0, 0, 0, loc), expected: 5 * time.Minute},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, p.pollInterval(tc.now))
		})
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	p := New(testConfig(), &fakeMarketDataApi{quotes: map[string]float64{}})

	p.Start()
	p.Start() // second start is a no-op

	done := make(chan struct{})
	go func() {
		p.Stop()
		p.Stop() // second stop is a no-op
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestClearCaches(t *testing.T) {
	api := &fakeMarketDataApi{quotes: map[string]float64{"VWCE.DE": 105.5}}
	p := New(testConfig(), api)

	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	p.nowFn = func() time.Time { return now }

	require.Equal(t, 105.5, p.Latest(context.Background(), "VWCE.DE"))
	require.Equal(t, 1, api.quoteCalls)

	p.ClearCaches()

	assert.Equal(t, 105.5, p.Latest(context.Background(), "VWCE.DE"))
	assert.Equal(t, 2, api.quoteCalls)
}
