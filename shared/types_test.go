package shared

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

func TestInstrumentKey(t *testing.T) {
	tests := []struct {
		name       string
		instrument Instrument
		want       string
	}{
		{
			name:       "stock keyed by symbol",
			instrument: Instrument{Symbol: "soxl", Kind: Stock},
			want:       "stock:SOXL",
		},
		{
			name:       "crypto keyed by provider id",
			instrument: Instrument{ID: "Shiba-Inu", Symbol: "SHIB", Kind: Crypto},
			want:       "crypto:shiba-inu",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.instrument.Key(), test.want)
		})
	}
}

func TestSummarizeTradesEmpty(t *testing.T) {
	summary := SummarizeTrades(nil)
	assert.Equal(t, summary.Total, 0)
	assert.Equal(t, len(summary.ByType), 0)
	assert.Equal(t, len(summary.BySymbol), 0)
}

func TestSummarizeTrades(t *testing.T) {
	trades := []TradeRecord{
		{Symbol: "BTC", Type: RSISignal},
		{Symbol: "btc", Type: "rsi"},
		{Symbol: "BTC", Type: RSISignal},
	}

	summary := SummarizeTrades(trades)
	assert.Equal(t, summary.Total, 3)
	if !cmp.Equal(summary.ByType, map[string]int{"RSI": 3}) {
		t.Errorf("mismatching type counts: %v", cmp.Diff(summary.ByType, map[string]int{"RSI": 3}))
	}
	if !cmp.Equal(summary.BySymbol, map[string]int{"BTC": 3}) {
		t.Errorf("mismatching symbol counts: %v", cmp.Diff(summary.BySymbol, map[string]int{"BTC": 3}))
	}
}

func TestSummarizeTradesUnknownBuckets(t *testing.T) {
	trades := []TradeRecord{
		{Symbol: "", Type: ""},
		{Symbol: "eth", Type: BreakoutSignal},
	}

	summary := SummarizeTrades(trades)
	assert.Equal(t, summary.Total, 2)
	assert.Equal(t, summary.ByType["UNKNOWN"], 1)
	assert.Equal(t, summary.BySymbol["UNKNOWN"], 1)
	assert.Equal(t, summary.ByType["BREAKOUT"], 1)
	assert.Equal(t, summary.BySymbol["ETH"], 1)
}
