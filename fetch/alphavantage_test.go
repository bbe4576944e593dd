package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

const intradayPayload = `{
	"Meta Data": {"2. Symbol": "SOXL"},
	"Time Series (5min)": {
		"2024-03-01 10:35:00": {"1. open": "30.10", "4. close": "30.25"},
		"2024-03-01 10:25:00": {"1. open": "29.90", "4. close": "30.00"},
		"2024-03-01 10:30:00": {"1. open": "30.00", "4. close": "30.10"}
	}
}`

func TestParseIntradayCloses(t *testing.T) {
	closes, err := ParseIntradayCloses([]byte(intradayPayload), "SOXL")
	assert.NoError(t, err)

	// Out-of-order bars are reordered oldest first.
	want := []float64{30.00, 30.10, 30.25}
	if !cmp.Equal(closes, want) {
		t.Fatalf("mismatching closes: %v", cmp.Diff(closes, want))
	}
}

func TestParseIntradayClosesSoftFailures(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		errContains string
	}{
		{
			name:        "rate limit note",
			body:        `{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`,
			errContains: "note",
		},
		{
			name:        "information payload",
			body:        `{"Information": "The demo API key is for demo purposes only."}`,
			errContains: "info",
		},
		{
			name:        "missing series",
			body:        `{"Meta Data": {"2. Symbol": "SOXL"}}`,
			errContains: "missing timeseries",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseIntradayCloses([]byte(test.body), "SOXL")
			assert.Error(t, err)
			assert.Equal(t, strings.Contains(err.Error(), test.errContains), true)
		})
	}
}

func TestParseIntradayClosesDropsUnusableBars(t *testing.T) {
	body := `{
		"Time Series (5min)": {
			"2024-03-01 10:25:00": {"4. close": "30.00"},
			"2024-03-01 10:30:00": {"4. close": "0"},
			"2024-03-01 10:35:00": {"4. close": "not-a-number"},
			"2024-03-01 10:40:00": {"4. close": "30.50"}
		}
	}`

	closes, err := ParseIntradayCloses([]byte(body), "SOXL")
	assert.NoError(t, err)

	want := []float64{30.00, 30.50}
	if !cmp.Equal(closes, want) {
		t.Fatalf("mismatching closes: %v", cmp.Diff(closes, want))
	}
}

func TestFetchStockPrices(t *testing.T) {
	var gotQuery string
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(intradayPayload))
	}))
	defer svr.Close()

	client := NewAlphaVantageClient(&AlphaVantageConfig{APIKey: "testkey", BaseURL: svr.URL})
	closes, err := client.FetchStockPrices(context.Background(), "SOXL")
	assert.NoError(t, err)
	assert.Equal(t, len(closes), 3)

	assert.Equal(t, strings.Contains(gotQuery, "symbol=SOXL"), true)
	assert.Equal(t, strings.Contains(gotQuery, "apikey=testkey"), true)
	assert.Equal(t, strings.Contains(gotQuery, "interval=5min"), true)
}

func TestFetchStockPricesRequiresAPIKey(t *testing.T) {
	client := NewAlphaVantageClient(&AlphaVantageConfig{})
	_, err := client.FetchStockPrices(context.Background(), "SOXL")
	assert.Error(t, err)
}
