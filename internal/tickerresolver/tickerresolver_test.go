package tickerresolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model/yahooModel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSymbolCache struct {
	tickers map[string]string
}

func newFakeSymbolCache() *fakeSymbolCache {
	return &fakeSymbolCache{tickers: make(map[string]string)}
}

func (c *fakeSymbolCache) GetTicker(_ context.Context, key string) (string, error) {
	ticker, ok := c.tickers[key]
	if !ok {
		return "", errors.New("not found")
	}
	return ticker, nil
}

func (c *fakeSymbolCache) SetTicker(_ context.Context, key, ticker string) error {
	c.tickers[key] = ticker
	return nil
}

type fakeMarketDataApi struct {
	validTickers  map[string]bool
	searchResults []yahooModel.SearchQuote

	chartCalls  int
	searchCalls int
}

func (a *fakeMarketDataApi) GetChart(_ context.Context, ticker string, _ model.Resolution, _, _ time.Time) ([]model.PriceSample, error) {
	a.chartCalls++
	if !a.validTickers[ticker] {
		return nil, errors.New("not found")
	}
	return []model.PriceSample{{Timestamp: time.Now(), Close: 100}}, nil
}

func (a *fakeMarketDataApi) Search(_ context.Context, _ string) ([]yahooModel.SearchQuote, error) {
	a.searchCalls++
	return a.searchResults, nil
}

func TestResolveDirectWithSuffix(t *testing.T) {
	cache := newFakeSymbolCache()
	api := &fakeMarketDataApi{validTickers: map[string]bool{"VWCE.DE": true}}
	r := New(cache, api)

	ticker := r.Resolve(context.Background(), "VWCE", "IE00BK5BQT80")

	assert.Equal(t, "VWCE.DE", ticker)
	assert.Equal(t, 0, api.searchCalls)
	assert.Equal(t, "VWCE.DE", cache.tickers["IE00BK5BQT80"])
}

func TestResolveTickerPipeIsinInput(t *testing.T) {
	cache := newFakeSymbolCache()
	api := &fakeMarketDataApi{validTickers: map[string]bool{"VWCE.DE": true}}
	r := New(cache, api)

	ticker := r.Resolve(context.Background(), "VWCE | IE00BK5BQT80", "")

	assert.Equal(t, "VWCE.DE", ticker)
}

func TestResolveSecondCallHitsCache(t *testing.T) {
	cache := newFakeSymbolCache()
	api := &fakeMarketDataApi{validTickers: map[string]bool{"VWCE.DE": true}}
	r := New(cache, api)

	first := r.Resolve(context.Background(), "VWCE", "IE00BK5BQT80")
	require.Equal(t, "VWCE.DE", first)

	chartCallsAfterFirst := api.chartCalls

	second := r.Resolve(context.Background(), "VWCE", "IE00BK5BQT80")

	assert.Equal(t, "VWCE.DE", second)
	assert.Equal(t, 0, api.searchCalls)
	// the positive probe is remembered, so the cached mapping needs no feed call
	assert.Equal(t, chartCallsAfterFirst, api.chartCalls)
}

func TestResolveStaticFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		product  string
		expected string
	}{
		{name: "vanguard all-world", product: "VANGUARD FTSE ALL-WORLD UCITS ETF", expected: "VWCE.DE"},
		{name: "bitcoin", product: "BITCOIN (XBT/EUR)", expected: "BTC-EUR"},
		{name: "ethereum", product: "ETHEREUM (XET/EUR)", expected: "ETH-EUR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cache := newFakeSymbolCache()
			api := &fakeMarketDataApi{validTickers: map[string]bool{}}
			r := New(cache, api)

			ticker := r.Resolve(context.Background(), tc.product, "")

			assert.Equal(t, tc.expected, ticker)
			assert.Equal(t, 0, api.searchCalls, "fallback must win before search")
		})
	}
}

func TestResolveViaSearchPrefersKnownVenues(t *testing.T) {
	cache := newFakeSymbolCache()
	api := &fakeMarketDataApi{
		validTickers: map[string]bool{"FUND.DE": true, "FUND": true},
		searchResults: []yahooModel.SearchQuote{
			{Symbol: "FUND", QuoteType: "EQUITY", Exchange: "NYQ"},
			{Symbol: "FUND.DE", QuoteType: "ETF", Exchange: "STU"},
			{Symbol: "FUNDOPT", QuoteType: "OPTION", Exchange: "STU"},
		},
	}
	r := New(cache, api)

	ticker := r.Resolve(context.Background(), "Some Fund Name", "IE00TEST1234")

	assert.Equal(t, "FUND.DE", ticker)
	assert.Positive(t, api.searchCalls)
	assert.Equal(t, "FUND.DE", cache.tickers["IE00TEST1234"])
}

func TestResolveUnresolvable(t *testing.T) {
	cache := newFakeSymbolCache()
	api := &fakeMarketDataApi{validTickers: map[string]bool{}}
	r := New(cache, api)

	ticker := r.Resolve(context.Background(), "Totally Unknown Instrument", "XX0000000000")

	assert.Equal(t, "", ticker)
	assert.Empty(t, cache.tickers)
}

func TestIsCryptoTicker(t *testing.T) {
	assert.True(t, IsCryptoTicker("BTC-EUR"))
	assert.True(t, IsCryptoTicker("ETH-EUR"))
	assert.False(t, IsCryptoTicker("VWCE.DE"))
	assert.False(t, IsCryptoTicker("AAPL"))
}
