package shared

import (
	"strings"
	"time"
)

// InstrumentKind represents the market category of a tracked instrument.
type InstrumentKind int

const (
	Stock InstrumentKind = iota
	Crypto
)

// String stringifies the provided instrument kind.
func (k InstrumentKind) String() string {
	switch k {
	case Stock:
		return "stock"
	case Crypto:
		return "crypto"
	default:
		return "unknown"
	}
}

// Instrument represents a watch-list entry to be scanned for signals.
type Instrument struct {
	// ID is the provider-specific identifier (eg. a coingecko id). Empty for stocks.
	ID string
	// Symbol is the display ticker in uppercase canonical form.
	Symbol string
	// Kind is the market category of the instrument.
	Kind InstrumentKind
}

// Key generates the identity key for the instrument, keyed by provider id
// for crypto and by symbol for stocks.
func (i *Instrument) Key() string {
	switch i.Kind {
	case Crypto:
		return i.Kind.String() + ":" + strings.ToLower(i.ID)
	default:
		return i.Kind.String() + ":" + strings.ToUpper(i.Symbol)
	}
}

// SignalType represents the rule that produced a trade signal.
type SignalType string

const (
	RSISignal      SignalType = "RSI"
	BreakoutSignal SignalType = "BREAKOUT"
)

// TradeStatus represents the lifecycle status of a trade record.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// TradeRecord represents a logged occurrence of a fired rule, carrying an
// open/closed lifecycle state. It is not an executed trade.
type TradeRecord struct {
	ID        string
	Symbol    string
	Type      SignalType
	Price     float64
	Reason    string
	Status    TradeStatus
	Note      string
	CreatedAt time.Time
	ClosedAt  time.Time
}

// TradeSummary represents aggregated counts over a set of trade records.
type TradeSummary struct {
	Total    int
	ByType   map[string]int
	BySymbol map[string]int
}

// SummarizeTrades aggregates the provided trade records by type and symbol.
// Types and symbols are normalized to uppercase, missing fields bucket
// under UNKNOWN.
func SummarizeTrades(trades []TradeRecord) TradeSummary {
	summary := TradeSummary{
		ByType:   make(map[string]int),
		BySymbol: make(map[string]int),
	}

	for idx := range trades {
		signalType := strings.ToUpper(string(trades[idx].Type))
		if signalType == "" {
			signalType = "UNKNOWN"
		}

		symbol := strings.ToUpper(trades[idx].Symbol)
		if symbol == "" {
			symbol = "UNKNOWN"
		}

		summary.ByType[signalType]++
		summary.BySymbol[symbol]++
		summary.Total++
	}

	return summary
}
