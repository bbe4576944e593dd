package shared

import (
	"context"
	"time"
)

// StockFetcher defines the requirements for fetching stock price series.
type StockFetcher interface {
	// FetchStockPrices fetches intraday closing prices for the provided
	// symbol, ordered oldest first.
	FetchStockPrices(ctx context.Context, symbol string) ([]float64, error)
}

// CryptoFetcher defines the requirements for fetching crypto price series.
type CryptoFetcher interface {
	// FetchCoinPrices fetches recent prices for the provided coin id,
	// ordered oldest first.
	FetchCoinPrices(ctx context.Context, coinID string) ([]float64, error)
}

// TradeFilter represents equality filters for trade record reads.
type TradeFilter struct {
	Symbol string
	Type   SignalType
	Status TradeStatus
}

// TradeStore defines the requirements for managing trade record lifecycles.
type TradeStore interface {
	// OpenTrade persists the provided trade record with an open status.
	OpenTrade(ctx context.Context, record *TradeRecord) error
	// CloseTrade closes all open trade records matching the provided symbol
	// and signal type, reporting the number of records closed.
	CloseTrade(ctx context.Context, symbol string, signalType SignalType, note string) (int, error)
	// FetchTrades fetches trade records matching the provided filter,
	// ordered newest first.
	FetchTrades(ctx context.Context, filter TradeFilter) ([]TradeRecord, error)
	// FetchTradesSince fetches trade records created at or after the provided
	// time and matching the provided filter, ordered newest first.
	FetchTradesSince(ctx context.Context, since time.Time, filter TradeFilter) ([]TradeRecord, error)
}

// WatchlistStore defines the requirements for managing the scan watch-list.
type WatchlistStore interface {
	// AddInstrument upserts the provided instrument into the watch-list.
	AddInstrument(ctx context.Context, instrument *Instrument) error
	// RemoveInstrument removes the provided instrument from the watch-list,
	// reporting the number of entries removed.
	RemoveInstrument(ctx context.Context, instrument *Instrument) (int, error)
	// ListInstruments fetches all watch-list entries of the provided kind.
	ListInstruments(ctx context.Context, kind InstrumentKind) ([]Instrument, error)
}

// SettingsStore defines the requirements for managing tunable settings.
type SettingsStore interface {
	// SetSetting upserts the provided setting.
	SetSetting(ctx context.Context, key string, value string) error
	// GetSetting fetches the value of the provided setting key, the boolean
	// indicates whether the key is set.
	GetSetting(ctx context.Context, key string) (string, bool, error)
	// AllSettings fetches all stored settings as a flat map.
	AllSettings(ctx context.Context) (map[string]string, error)
}

// Notifier defines the requirements for sending best-effort notifications.
type Notifier interface {
	// Notify sends the provided message, best-effort.
	Notify(ctx context.Context, message string)
}
