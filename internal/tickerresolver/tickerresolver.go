package tickerresolver

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model/yahooModel"
	"github.com/m0rkovka/portfolio_pulse_bot/utils"
)

// suffix variants probed during direct validation: bare symbol first, then
// the regional listings the ledger's instruments actually trade on.
var marketSuffixes = []string{"", ".DE", ".F", ".AS"}

// quote types accepted from symbol search.
var validQuoteTypes = map[string]bool{
	"EQUITY":     true,
	"ETF":        true,
	"MUTUALFUND": true,
}

// STU proxies Tradegate on the feed, which handles almost all trades in
// the source ledgers; the rest are EUR venues.
var preferredExchanges = map[string]bool{
	"STU": true,
	"GER": true,
	"AMS": true,
	"PAR": true,
	"MIL": true,
	"BRU": true,
	"DUB": true,
}

// last-resort mapping for recurring instruments whose free-text names never
// match a search result cleanly.
var staticFallbacks = []struct {
	match  func(upper string) bool
	ticker string
}{
	{func(u string) bool { return strings.Contains(u, "VANGUARD FTSE ALL-WORLD") }, "VWCE.DE"},
	{func(u string) bool { return strings.HasPrefix(u, "BITCOIN") }, "BTC-EUR"},
	{func(u string) bool { return strings.HasPrefix(u, "ETHEREUM") }, "ETH-EUR"},
}

type SymbolCache interface {
	GetTicker(ctx context.Context, key string) (string, error)
	SetTicker(ctx context.Context, key, ticker string) error
}

type MarketDataApi interface {
	GetChart(ctx context.Context, ticker string, resolution model.Resolution, start, end time.Time) ([]model.PriceSample, error)
	Search(ctx context.Context, query string) ([]yahooModel.SearchQuote, error)
}

// Resolver maps a free-text (product name, identifier) pair to a validated
// price-feed ticker. Resolution is an ordered pipeline; the only state
// mutation is the idempotent symbol-cache write on success.
type Resolver struct {
	cache SymbolCache
	api   MarketDataApi

	mu        sync.Mutex
	validated map[string]bool // positive probe results for this process
	nowFn     func() time.Time
}

func New(cache SymbolCache, api MarketDataApi) *Resolver {
	return &Resolver{
		cache:     cache,
		api:       api,
		validated: make(map[string]bool),
		nowFn:     time.Now,
	}
}

// Resolve returns the ticker for a (name, identifier) pair, or "" when no
// step succeeds. Every step is best-effort: feed failures degrade to the
// next step, never to an error.
func (r *Resolver) Resolve(ctx context.Context, name, identifier string) string {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Resolver.Resolve"

	// 1. cache lookup, identifier first
	for _, key := range []string{identifier, name} {
		if key == "" {
			continue
		}
		mapped, err := r.cache.GetTicker(ctx, key)
		if err != nil || mapped == "" {
			continue
		}
		if resolved := r.resolveInputString(ctx, mapped, false); resolved != "" {
			return resolved
		}
	}

	mappingKey := identifier
	if mappingKey == "" {
		mappingKey = name
	}

	// 2. the raw name itself may already be a ticker ("VWCE" or "VWCE | IE00BK5BQT80")
	if resolved := r.resolveInputString(ctx, name, true); resolved != "" {
		r.persistMapping(ctx, mappingKey, resolved)
		return resolved
	}

	// 3. static fallback table
	if name != "" {
		upper := strings.ToUpper(name)
		for _, fb := range staticFallbacks {
			if fb.match(upper) {
				r.persistMapping(ctx, mappingKey, fb.ticker)
				return fb.ticker
			}
		}
	}

	// 4. external symbol search, identifier first
	quotes := make([]yahooModel.SearchQuote, 0)
	for _, query := range []string{identifier, name} {
		if query == "" {
			continue
		}
		found, err := r.api.Search(ctx, query)
		if err != nil {
			slog.Warn("symbol search failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.String("err", err.Error()))
			continue
		}
		quotes = append(quotes, found...)
	}

	if discovered := r.selectBestQuote(ctx, quotes); discovered != "" {
		r.persistMapping(ctx, mappingKey, discovered)
		return discovered
	}

	slog.Warn("ticker not resolved", slog.String("rqID", rqID), slog.String("op", op), slog.String("name", name), slog.String("identifier", identifier))

	return ""
}

// IsCryptoTicker reports whether a resolved ticker is a crypto pair
// (BTC-EUR style), which trades fractionally and continuously.
func IsCryptoTicker(ticker string) bool {
	return strings.Contains(ticker, "-")
}

// resolveInputString handles "TICKER | ISIN" inputs and suffix probing.
// In strict mode an unvalidated candidate is rejected; otherwise the first
// candidate is trusted as-is (it came from the cache, which only holds
// previously validated values).
func (r *Resolver) resolveInputString(ctx context.Context, s string, strict bool) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	candidates := make([]string, 0, 2)
	if strings.Contains(s, "|") {
		for _, part := range strings.Split(s, "|") {
			if p := strings.TrimSpace(part); p != "" {
				candidates = append(candidates, p)
			}
		}
	} else {
		candidates = append(candidates, s)
	}

	for _, cand := range candidates {
		for _, suffix := range marketSuffixes {
			ticker := cand + suffix
			if r.validateTicker(ctx, ticker) {
				return ticker
			}
		}
	}

	if strict || len(candidates) == 0 {
		return ""
	}

	return candidates[0]
}

// validateTicker probes a candidate with one day of history. Positive
// results are remembered for the process lifetime to avoid re-probing the
// feed for every position.
func (r *Resolver) validateTicker(ctx context.Context, ticker string) bool {
	r.mu.Lock()
	if r.validated[ticker] {
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()

	now := r.nowFn()
	samples, err := r.api.GetChart(ctx, ticker, model.ResolutionDaily, now.AddDate(0, 0, -5), now)
	if err != nil || len(samples) == 0 {
		return false
	}

	r.mu.Lock()
	r.validated[ticker] = true
	r.mu.Unlock()

	return true
}

// selectBestQuote filters search results to tradable instrument types and
// validates candidates, preferred venues first.
func (r *Resolver) selectBestQuote(ctx context.Context, quotes []yahooModel.SearchQuote) string {
	valid := make([]yahooModel.SearchQuote, 0, len(quotes))
	for _, q := range quotes {
		if q.Symbol == "" || !validQuoteTypes[q.QuoteType] {
			continue
		}
		valid = append(valid, q)
	}

	for _, q := range valid {
		if preferredExchanges[q.Exchange] && r.validateTicker(ctx, q.Symbol) {
			return q.Symbol
		}
	}

	for _, q := range valid {
		if r.validateTicker(ctx, q.Symbol) {
			return q.Symbol
		}
	}

	return ""
}

func (r *Resolver) persistMapping(ctx context.Context, key, ticker string) {
	if key == "" {
		return
	}

	if err := r.cache.SetTicker(ctx, key, ticker); err != nil {
		rqID := utils.GetRequestIDFromCtx(ctx)
		slog.Warn("can't persist symbol mapping", slog.String("rqID", rqID), slog.String("key", key), slog.String("err", err.Error()))
	}
}
