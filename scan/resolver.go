package scan

import (
	"context"

	"github.com/rs/zerolog"

	"tradewatch/shared"
)

// Built-in watch-lists used when the stored watch-list is empty or
// unreachable, so the scanner never goes idle.
var (
	defaultStocks = []shared.Instrument{
		{Symbol: "SOXL", Kind: shared.Stock},
	}

	defaultCoins = []shared.Instrument{
		{ID: "bitcoin", Symbol: "BTC", Kind: shared.Crypto},
		{ID: "ethereum", Symbol: "ETH", Kind: shared.Crypto},
		{ID: "litecoin", Symbol: "LTC", Kind: shared.Crypto},
		{ID: "shiba-inu", Symbol: "SHIB", Kind: shared.Crypto},
	}
)

// defaultInstruments generates the built-in watch-list for the provided kind.
func defaultInstruments(kind shared.InstrumentKind) []shared.Instrument {
	switch kind {
	case shared.Crypto:
		return defaultCoins
	default:
		return defaultStocks
	}
}

// ResolveInstruments fetches the stored watch-list for the provided kind,
// falling back to the built-in defaults on a store error or an empty list.
// A store outage degrades the scanner to defaults rather than halting it.
func ResolveInstruments(ctx context.Context, watchlist shared.WatchlistStore, kind shared.InstrumentKind, logger *zerolog.Logger) []shared.Instrument {
	instruments, err := watchlist.ListInstruments(ctx, kind)
	if err != nil {
		logger.Error().Msgf("resolving %s watchlist, using defaults: %v", kind, err)
		return defaultInstruments(kind)
	}

	if len(instruments) == 0 {
		return defaultInstruments(kind)
	}

	return instruments
}
