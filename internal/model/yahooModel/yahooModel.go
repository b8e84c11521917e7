package yahooModel

// RawChart mirrors the chart endpoint response. Close values are pointers
// because the feed emits nulls for halted or missing candles.
type RawChart struct {
	Chart struct {
		Result []ChartResult `json:"result"`
		Error  *ChartError   `json:"error"`
	} `json:"chart"`
}

type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type ChartResult struct {
	Meta       ChartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type ChartMeta struct {
	Symbol               string  `json:"symbol"`
	Currency             string  `json:"currency"`
	ExchangeTimezoneName string  `json:"exchangeTimezoneName"`
	RegularMarketPrice   float64 `json:"regularMarketPrice"`
	ChartPreviousClose   float64 `json:"chartPreviousClose"`
}

type RawSearch struct {
	Quotes []SearchQuote `json:"quotes"`
}

type SearchQuote struct {
	Symbol    string `json:"symbol"`
	QuoteType string `json:"quoteType"`
	Exchange  string `json:"exchange"`
	Shortname string `json:"shortname"`
	Longname  string `json:"longname"`
}
