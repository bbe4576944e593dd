package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"tradewatch/shared"
)

const (
	// AlphaVantageBaseURL is the default Alpha Vantage API base url.
	AlphaVantageBaseURL = "https://www.alphavantage.co/query"

	// intradayInterval is the requested intraday bar interval.
	intradayInterval = "5min"
	// timeSeriesKey is the response key carrying the intraday series.
	timeSeriesKey = "Time Series (5min)"
)

// AlphaVantageConfig represents the configuration for the Alpha Vantage client.
type AlphaVantageConfig struct {
	// APIKey is the Alpha Vantage API Key.
	APIKey string
	// BaseURL is the API base url.
	BaseURL string
}

// AlphaVantageClient represents the Alpha Vantage API client.
type AlphaVantageClient struct {
	cfg   *AlphaVantageConfig
	httpc http.Client
	buf   *bytes.Buffer
}

// Ensure the Alpha Vantage client implements the StockFetcher interface.
var _ shared.StockFetcher = (*AlphaVantageClient)(nil)

// NewAlphaVantageClient instantiates a new Alpha Vantage client.
func NewAlphaVantageClient(cfg *AlphaVantageConfig) *AlphaVantageClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = AlphaVantageBaseURL
	}

	return &AlphaVantageClient{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 10},
		buf:   bytes.NewBuffer(make([]byte, 0, 512)),
	}
}

// formURL creates full urls including parameters for the api.
func (c *AlphaVantageClient) formURL(params string) string {
	c.buf.WriteString(c.cfg.BaseURL)
	c.buf.WriteString("?")
	c.buf.WriteString(params)
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// ParseIntradayCloses parses intraday closing prices from the provided json
// payload, ordered oldest first. Rate limit notices and other soft failure
// payloads surface as errors.
func ParseIntradayCloses(body []byte, symbol string) ([]float64, error) {
	if note := gjson.GetBytes(body, "Note"); note.Exists() {
		return nil, fmt.Errorf("alpha vantage note for %s: %s", symbol, note.String())
	}
	if info := gjson.GetBytes(body, "Information"); info.Exists() {
		return nil, fmt.Errorf("alpha vantage info for %s: %s", symbol, info.String())
	}

	series := gjson.GetBytes(body, escapeKey(timeSeriesKey))
	if !series.Exists() {
		return nil, fmt.Errorf("alpha vantage missing timeseries for %s", symbol)
	}

	type bar struct {
		date  string
		close float64
	}

	bars := make([]bar, 0, 128)
	series.ForEach(func(key, value gjson.Result) bool {
		bars = append(bars, bar{date: key.String(), close: value.Get(escapeKey("4. close")).Float()})
		return true
	})

	// Bar timestamps are fixed width, a lexicographic sort orders them
	// oldest first.
	sort.Slice(bars, func(i, j int) bool { return bars[i].date < bars[j].date })

	closes := make([]float64, 0, len(bars))
	for idx := range bars {
		if math.IsNaN(bars[idx].close) || math.IsInf(bars[idx].close, 0) || bars[idx].close == 0 {
			continue
		}
		closes = append(closes, bars[idx].close)
	}

	return closes, nil
}

// escapeKey escapes gjson path separators in the provided object key.
func escapeKey(key string) string {
	buf := bytes.NewBuffer(make([]byte, 0, len(key)+4))
	for _, r := range key {
		if r == '.' {
			buf.WriteString("\\")
		}
		buf.WriteRune(r)
	}

	return buf.String()
}

// FetchStockPrices fetches intraday closing prices for the provided symbol,
// ordered oldest first.
func (c *AlphaVantageClient) FetchStockPrices(ctx context.Context, symbol string) ([]float64, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("alpha vantage api key is not set")
	}

	params := url.Values{}
	params.Add("function", "TIME_SERIES_INTRADAY")
	params.Add("symbol", symbol)
	params.Add("interval", intradayInterval)
	params.Add("outputsize", "compact")
	params.Add("apikey", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating intraday request for %s: %w", symbol, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching intraday data for %s: %w", symbol, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return ParseIntradayCloses(body, symbol)
}
