package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

func TestParseMarketChartPrices(t *testing.T) {
	body := `{
		"prices": [
			[1709280000000, 61250.12],
			[1709283600000, 61410.55],
			[1709287200000],
			[1709290800000, 61100.00]
		]
	}`

	prices, err := ParseMarketChartPrices([]byte(body), "bitcoin")
	assert.NoError(t, err)

	// The short point is dropped, order is preserved.
	want := []float64{61250.12, 61410.55, 61100.00}
	if !cmp.Equal(prices, want) {
		t.Fatalf("mismatching prices: %v", cmp.Diff(prices, want))
	}
}

func TestParseMarketChartPricesMissingSeries(t *testing.T) {
	_, err := ParseMarketChartPrices([]byte(`{"error": "coin not found"}`), "nope")
	assert.Error(t, err)
}

func TestFetchCoinPrices(t *testing.T) {
	var gotPath, gotQuery string
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"prices": [[1709280000000, 0.000024]]}`))
	}))
	defer svr.Close()

	client := NewCoinGeckoClient(&CoinGeckoConfig{BaseURL: svr.URL})
	prices, err := client.FetchCoinPrices(context.Background(), "shiba-inu")
	assert.NoError(t, err)
	assert.Equal(t, prices, []float64{0.000024})

	assert.Equal(t, gotPath, "/coins/shiba-inu/market_chart")
	assert.Equal(t, gotQuery, "days=2&vs_currency=usd")
}
