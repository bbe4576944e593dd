package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"tradewatch/shared"
)

const (
	// CoinGeckoBaseURL is the default CoinGecko API base url.
	CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

	// marketChartDays is the requested market chart span in days. Omitting
	// an explicit interval at this span yields hourly data.
	marketChartDays = "2"
)

// CoinGeckoConfig represents the configuration for the CoinGecko client.
type CoinGeckoConfig struct {
	// BaseURL is the API base url.
	BaseURL string
}

// CoinGeckoClient represents the CoinGecko API client.
type CoinGeckoClient struct {
	cfg   *CoinGeckoConfig
	httpc http.Client
	buf   *bytes.Buffer
}

// Ensure the CoinGecko client implements the CryptoFetcher interface.
var _ shared.CryptoFetcher = (*CoinGeckoClient)(nil)

// NewCoinGeckoClient instantiates a new CoinGecko client.
func NewCoinGeckoClient(cfg *CoinGeckoConfig) *CoinGeckoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = CoinGeckoBaseURL
	}

	return &CoinGeckoClient{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 10},
		buf:   bytes.NewBuffer(make([]byte, 0, 512)),
	}
}

// formURL creates full urls including parameters for the api.
func (c *CoinGeckoClient) formURL(path string, params string) string {
	c.buf.WriteString(c.cfg.BaseURL)
	c.buf.WriteString(path)
	c.buf.WriteString("?")
	c.buf.WriteString(params)
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// ParseMarketChartPrices parses prices from the provided market chart json
// payload, ordered oldest first.
func ParseMarketChartPrices(body []byte, coinID string) ([]float64, error) {
	data := gjson.GetBytes(body, "prices")
	if !data.IsArray() {
		return nil, fmt.Errorf("coingecko missing prices for %s", coinID)
	}

	points := data.Array()
	prices := make([]float64, 0, len(points))
	for idx := range points {
		point := points[idx].Array()
		if len(point) < 2 {
			continue
		}

		price := point[1].Float()
		if math.IsNaN(price) || math.IsInf(price, 0) {
			continue
		}

		prices = append(prices, price)
	}

	return prices, nil
}

// FetchCoinPrices fetches roughly the last 48 hours of hourly prices for the
// provided coin id, ordered oldest first.
func (c *CoinGeckoClient) FetchCoinPrices(ctx context.Context, coinID string) ([]float64, error) {
	params := url.Values{}
	params.Add("vs_currency", "usd")
	params.Add("days", marketChartDays)

	path := "/coins/" + url.PathEscape(coinID) + "/market_chart"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(path, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating market chart request for %s: %w", coinID, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching market chart for %s: %w", coinID, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return ParseMarketChartPrices(body, coinID)
}
