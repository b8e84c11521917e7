package priceprovider

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m0rkovka/portfolio_pulse_bot/config"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/m0rkovka/portfolio_pulse_bot/utils"
)

type MarketDataApi interface {
	GetQuote(ctx context.Context, ticker string) (float64, error)
	GetChart(ctx context.Context, ticker string, resolution model.Resolution, start, end time.Time) ([]model.PriceSample, error)
}

type cachedPrice struct {
	price     float64
	fetchedAt time.Time
}

type cachedHistory struct {
	samples   []model.PriceSample
	fetchedAt time.Time
}

type historyKey struct {
	ticker     string
	resolution model.Resolution
	startDay   int64 // unix day of the requested start, so close starts share an entry
}

// Provider is the cached accessor over the market-data feed. All accessors
// degrade to zero on feed failure; zero means "unknown", never an error.
//
// A single background worker owns refreshing the latest-price cache for the
// watchlist; consumer goroutines only read. The mutex is never held across
// a network call.
type Provider struct {
	api MarketDataApi
	cfg *config.Config
	loc *time.Location

	mu          sync.Mutex
	latest      map[string]cachedPrice
	prevClose   map[string]cachedPrice
	sessionOpen map[string]cachedPrice
	history     map[historyKey]cachedHistory

	wlMu      sync.Mutex
	watchlist map[string]struct{}

	running atomic.Bool
	done    chan struct{}
	stopped chan struct{}

	nowFn func() time.Time
}

func New(cfg *config.Config, api MarketDataApi) *Provider {
	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		slog.Error("can't load market timezone, falling back to UTC", slog.String("tz", cfg.Market.Timezone), slog.String("err", err.Error()))
		loc = time.UTC
	}

	return &Provider{
		api:         api,
		cfg:         cfg,
		loc:         loc,
		latest:      make(map[string]cachedPrice),
		prevClose:   make(map[string]cachedPrice),
		sessionOpen: make(map[string]cachedPrice),
		history:     make(map[historyKey]cachedHistory),
		watchlist:   make(map[string]struct{}),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		nowFn:       time.Now,
	}
}

// Watch registers a ticker with the background refresher. Additive and
// idempotent; callable from any goroutine without blocking on I/O.
func (p *Provider) Watch(ticker string) {
	if ticker == "" {
		return
	}
	p.wlMu.Lock()
	p.watchlist[ticker] = struct{}{}
	p.wlMu.Unlock()
}

// Latest returns the most recent known price, 0 when unknown. A fresh
// cache entry is returned as is; a stale entry for a watched ticker is
// returned immediately (the worker refreshes it), so readers are never
// blocked by network I/O for the tickers active views care about. Only an
// unwatched, uncached ticker triggers a synchronous fetch.
func (p *Provider) Latest(ctx context.Context, ticker string) float64 {
	if ticker == "" {
		return 0
	}

	now := p.nowFn()

	p.mu.Lock()
	cached, ok := p.latest[ticker]
	p.mu.Unlock()

	if ok && now.Sub(cached.fetchedAt) < p.cfg.Cache.LatestPriceTTL {
		return cached.price
	}

	if ok && p.isWatched(ticker) {
		return cached.price
	}

	price, err := p.api.GetQuote(ctx, ticker)
	if err != nil {
		rqID := utils.GetRequestIDFromCtx(ctx)
		slog.Warn("can't fetch latest price", slog.String("rqID", rqID), slog.String("ticker", ticker), slog.String("err", err.Error()))
		return cached.price // zero value when nothing was ever cached
	}

	p.storeLatest(ticker, price, now)

	return price
}

// PreviousClose returns the prior trading session's close, 0 when unknown.
func (p *Provider) PreviousClose(ctx context.Context, ticker string) float64 {
	if ticker == "" {
		return 0
	}

	now := p.nowFn()

	p.mu.Lock()
	cached, ok := p.prevClose[ticker]
	p.mu.Unlock()

	if ok && now.Sub(cached.fetchedAt) < p.cfg.Cache.PrevCloseTTL {
		return cached.price
	}

	// a week of daily candles covers weekends and holidays
	samples, err := p.api.GetChart(ctx, ticker, model.ResolutionDaily, now.AddDate(0, 0, -7), now)
	if err != nil || len(samples) == 0 {
		return cached.price
	}

	price := samples[len(samples)-1].Close
	if len(samples) >= 2 {
		price = samples[len(samples)-2].Close
	}

	p.mu.Lock()
	p.prevClose[ticker] = cachedPrice{price: price, fetchedAt: now}
	p.mu.Unlock()

	return price
}

// SessionOpenReference returns the first intraday price of the current
// calendar day, the "since midnight" baseline for daily P/L. Distinct from
// the previous close: crypto pairs trade through midnight.
func (p *Provider) SessionOpenReference(ctx context.Context, ticker string) float64 {
	if ticker == "" {
		return 0
	}

	now := p.nowFn()

	p.mu.Lock()
	cached, ok := p.sessionOpen[ticker]
	p.mu.Unlock()

	if ok && now.Sub(cached.fetchedAt) < p.cfg.Cache.SessionOpenTTL {
		return cached.price
	}

	samples, err := p.api.GetChart(ctx, ticker, model.ResolutionIntraday, now.AddDate(0, 0, -2), now)
	if err != nil {
		return cached.price
	}

	midnight := p.midnight(now)
	price := 0.0
	for _, s := range samples {
		if !s.Timestamp.In(p.loc).Before(midnight) {
			price = s.Close
			break
		}
	}

	if price == 0 {
		return cached.price
	}

	p.mu.Lock()
	p.sessionOpen[ticker] = cachedPrice{price: price, fetchedAt: now}
	p.mu.Unlock()

	return price
}

// History returns close candles from start to now, normalized to the
// market timezone; daily samples are truncated to midnight. Empty on any
// feed failure.
func (p *Provider) History(ctx context.Context, ticker string, resolution model.Resolution, start time.Time) []model.PriceSample {
	if ticker == "" {
		return nil
	}

	now := p.nowFn()
	key := historyKey{ticker: ticker, resolution: resolution, startDay: start.Unix() / 86400}

	p.mu.Lock()
	cached, ok := p.history[key]
	p.mu.Unlock()

	if ok && now.Sub(cached.fetchedAt) < p.cfg.Cache.HistoryTTL {
		return cached.samples
	}

	raw, err := p.api.GetChart(ctx, ticker, resolution, start, now)
	if err != nil {
		rqID := utils.GetRequestIDFromCtx(ctx)
		slog.Warn("can't fetch history", slog.String("rqID", rqID), slog.String("ticker", ticker), slog.String("resolution", string(resolution)), slog.String("err", err.Error()))
		return cached.samples
	}

	samples := p.normalize(raw, resolution)

	p.mu.Lock()
	p.history[key] = cachedHistory{samples: samples, fetchedAt: now}
	p.mu.Unlock()

	return samples
}

// ClearCaches drops every cached price. Safe at any time; concurrent
// readers observe a refetch, nothing worse.
func (p *Provider) ClearCaches() {
	p.mu.Lock()
	p.latest = make(map[string]cachedPrice)
	p.prevClose = make(map[string]cachedPrice)
	p.sessionOpen = make(map[string]cachedPrice)
	p.history = make(map[historyKey]cachedHistory)
	p.mu.Unlock()
}

// Start launches the background refresher. Each cycle snapshots the
// watchlist, refreshes every member's latest price and sleeps an interval
// that depends on whether the primary venue is inside trading hours.
func (p *Provider) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	go p.refreshLoop()
	slog.Info("price refresher started")
}

func (p *Provider) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	close(p.done)
	<-p.stopped
	slog.Info("price refresher stopped")
}

func (p *Provider) refreshLoop() {
	defer close(p.stopped)

	for p.running.Load() {
		p.refreshWatchlist()

		select {
		case <-p.done:
			return
		case <-time.After(p.pollInterval(p.nowFn())):
		}
	}
}

func (p *Provider) refreshWatchlist() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered in price refresher", slog.Any("panic", r))
		}
	}()

	p.wlMu.Lock()
	tickers := make([]string, 0, len(p.watchlist))
	for t := range p.watchlist {
		tickers = append(tickers, t)
	}
	p.wlMu.Unlock()
	sort.Strings(tickers)

	for _, ticker := range tickers {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.API.Timeout)
		price, err := p.api.GetQuote(ctx, ticker)
		cancel()

		if err != nil {
			slog.Warn("watchlist refresh failed", slog.String("ticker", ticker), slog.String("err", err.Error()))
			continue
		}

		p.storeLatest(ticker, price, p.nowFn())
	}
}

// pollInterval picks the refresh cadence: short inside the primary venue's
// trading window (weekdays, fixed open and close hours), long otherwise.
func (p *Provider) pollInterval(now time.Time) time.Duration {
	local := now.In(p.loc)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return p.cfg.Market.OffHoursInterval
	}

	hour := local.Hour()
	if hour >= p.cfg.Market.OpenHour && hour < p.cfg.Market.CloseHour {
		return p.cfg.Market.RefreshInterval
	}

	return p.cfg.Market.OffHoursInterval
}

func (p *Provider) storeLatest(ticker string, price float64, at time.Time) {
	p.mu.Lock()
	p.latest[ticker] = cachedPrice{price: price, fetchedAt: at}
	p.mu.Unlock()
}

func (p *Provider) isWatched(ticker string) bool {
	p.wlMu.Lock()
	_, ok := p.watchlist[ticker]
	p.wlMu.Unlock()
	return ok
}

func (p *Provider) midnight(t time.Time) time.Time {
	local := t.In(p.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
}

func (p *Provider) normalize(samples []model.PriceSample, resolution model.Resolution) []model.PriceSample {
	out := make([]model.PriceSample, 0, len(samples))

	for _, s := range samples {
		ts := s.Timestamp.In(p.loc)
		if resolution == model.ResolutionDaily {
			ts = p.midnight(ts)
		}

		// daily candles occasionally come back stamped inside the session;
		// after truncation the later sample for the same day wins
		if resolution == model.ResolutionDaily && len(out) > 0 && out[len(out)-1].Timestamp.Equal(ts) {
			out[len(out)-1].Close = s.Close
			continue
		}

		out = append(out, model.PriceSample{Timestamp: ts, Close: s.Close})
	}

	return out
}
