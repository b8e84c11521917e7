package yahooApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/m0rkovka/portfolio_pulse_bot/config"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/externalApi"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model/yahooModel"
	"github.com/m0rkovka/portfolio_pulse_bot/utils"
)

type YahooApi struct {
	client    *resty.Client
	chartUrl  string
	searchUrl string
}

func New(cfg *config.Config) *YahooApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetHeader("User-Agent", "Mozilla/5.0")
	return &YahooApi{
		client:    client,
		chartUrl:  cfg.API.YahooApi.ChartUrl,
		searchUrl: cfg.API.YahooApi.SearchUrl,
	}
}

// GetChart returns close candles for one ticker between start and end.
// A feed error, an empty result and a chart-level error all collapse into
// externalApi.ErrNotFound: the caller never distinguishes outage from
// empty history.
func (a *YahooApi) GetChart(ctx context.Context, ticker string, resolution model.Resolution, start, end time.Time) ([]model.PriceSample, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "YahooApi.GetChart"

	url := fmt.Sprintf("%s/v8/finance/chart/%s", a.chartUrl, ticker)
	params := map[string]string{
		"interval": string(resolution),
		"period1":  strconv.FormatInt(start.Unix(), 10),
		"period2":  strconv.FormatInt(end.Unix(), 10),
		"events":   "history",
	}

	slog.Debug("GetChart start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(url)
	if err != nil {
		slog.Error("error while dialing chart endpoint", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	rawChart := yahooModel.RawChart{}
	if err = json.Unmarshal(resp.Body(), &rawChart); err != nil {
		slog.Error("can't unmarshal chart response", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	samples, err := a.parseRawChart(rawChart)
	if err != nil {
		slog.Warn("no chart data", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker), slog.String("err", err.Error()))
		return nil, err
	}

	slog.Debug("GetChart completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("samples", len(samples)))

	return samples, nil
}

// GetQuote returns the latest traded price from the chart meta block.
func (a *YahooApi) GetQuote(ctx context.Context, ticker string) (float64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "YahooApi.GetQuote"

	url := fmt.Sprintf("%s/v8/finance/chart/%s", a.chartUrl, ticker)
	params := map[string]string{
		"interval": "1d",
		"range":    "1d",
	}

	slog.Debug("GetQuote start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(url)
	if err != nil {
		slog.Error("error while dialing chart endpoint", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	rawChart := yahooModel.RawChart{}
	if err = json.Unmarshal(resp.Body(), &rawChart); err != nil {
		slog.Error("can't unmarshal chart response", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	if rawChart.Chart.Error != nil || len(rawChart.Chart.Result) == 0 {
		return 0, externalApi.ErrNotFound
	}

	meta := rawChart.Chart.Result[0].Meta
	if meta.RegularMarketPrice > 0 {
		slog.Debug("GetQuote completed", slog.String("rqID", rqID), slog.String("op", op))
		return meta.RegularMarketPrice, nil
	}

	// halted or delisted instruments carry no market price in meta,
	// fall back to the last candle
	samples, err := a.parseRawChart(rawChart)
	if err != nil {
		return 0, err
	}

	slog.Debug("GetQuote completed via last candle", slog.String("rqID", rqID), slog.String("op", op))

	return samples[len(samples)-1].Close, nil
}

// Search queries the free-text symbol search endpoint.
func (a *YahooApi) Search(ctx context.Context, query string) ([]yahooModel.SearchQuote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "YahooApi.Search"

	url := fmt.Sprintf("%s/v1/finance/search", a.searchUrl)

	slog.Debug("Search start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("q", query).
		Get(url)
	if err != nil {
		slog.Error("error while dialing search endpoint", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	rawSearch := yahooModel.RawSearch{}
	if err = json.Unmarshal(resp.Body(), &rawSearch); err != nil {
		slog.Error("can't unmarshal search response", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	slog.Debug("Search completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("quotes", len(rawSearch.Quotes)))

	return rawSearch.Quotes, nil
}

func (a *YahooApi) parseRawChart(rawChart yahooModel.RawChart) ([]model.PriceSample, error) {
	if rawChart.Chart.Error != nil {
		return nil, externalApi.ErrNotFound
	}

	if len(rawChart.Chart.Result) == 0 {
		return nil, externalApi.ErrNotFound
	}

	result := rawChart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, externalApi.ErrNotFound
	}

	closes := result.Indicators.Quote[0].Close
	if len(result.Timestamp) != len(closes) {
		return nil, fmt.Errorf("timestamps length %d != closes length %d", len(result.Timestamp), len(closes))
	}

	samples := make([]model.PriceSample, 0, len(closes))
	for i, ts := range result.Timestamp {
		if closes[i] == nil {
			continue
		}
		samples = append(samples, model.PriceSample{
			Timestamp: time.Unix(ts, 0).UTC(),
			Close:     *closes[i],
		})
	}

	if len(samples) == 0 {
		return nil, externalApi.ErrNotFound
	}

	return samples, nil
}
