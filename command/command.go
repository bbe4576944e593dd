package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/shared"
)

const (
	// defaultTimezone anchors summary windows when utc is not requested.
	defaultTimezone = "America/Los_Angeles"
	// maxSummaryDays bounds the summary window argument.
	maxSummaryDays = 7
)

// symbolGuesses maps well known coin ids to their tickers, used when an
// addcoin command omits the symbol.
var symbolGuesses = map[string]string{
	"bitcoin":     "BTC",
	"ethereum":    "ETH",
	"litecoin":    "LTC",
	"shiba-inu":   "SHIB",
	"solana":      "SOL",
	"cardano":     "ADA",
	"chainlink":   "LINK",
	"polygon":     "MATIC",
	"dogecoin":    "DOGE",
	"ripple":      "XRP",
	"binancecoin": "BNB",
}

// guessSymbolFromID generates a ticker for the provided coin id.
func guessSymbolFromID(coinID string) string {
	if symbol, ok := symbolGuesses[strings.ToLower(coinID)]; ok {
		return symbol
	}

	return strings.ToUpper(coinID)
}

// DispatcherConfig represents the command dispatcher configuration.
type DispatcherConfig struct {
	// Trades manages trade record lifecycles.
	Trades shared.TradeStore
	// Watchlist manages the scan watch-list.
	Watchlist shared.WatchlistStore
	// Settings manages tunable settings.
	Settings shared.SettingsStore
	// RequestScan queues an immediate scan cycle.
	RequestScan func()
	// OwnerIDs is the allow-list of operator identities for mutating
	// commands. An empty list leaves the dispatcher open.
	OwnerIDs []string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DispatcherConfig) Validate() error {
	var errs error

	if cfg.Trades == nil {
		errs = errors.Join(errs, fmt.Errorf("trade store cannot be nil"))
	}
	if cfg.Watchlist == nil {
		errs = errors.Join(errs, fmt.Errorf("watchlist store cannot be nil"))
	}
	if cfg.Settings == nil {
		errs = errors.Join(errs, fmt.Errorf("settings store cannot be nil"))
	}
	if cfg.RequestScan == nil {
		errs = errors.Join(errs, fmt.Errorf("request scan function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Dispatcher parses and executes textual operator commands.
type Dispatcher struct {
	cfg *DispatcherConfig
	loc *time.Location
}

// NewDispatcher initializes a new command dispatcher.
func NewDispatcher(cfg *DispatcherConfig) (*Dispatcher, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("loading summary timezone: %w", err)
	}

	return &Dispatcher{
		cfg: cfg,
		loc: loc,
	}, nil
}

// authorized reports whether the provided sender may run mutating commands.
// An unconfigured allow-list leaves the dispatcher open.
func (d *Dispatcher) authorized(senderID string) bool {
	if len(d.cfg.OwnerIDs) == 0 {
		return true
	}

	for idx := range d.cfg.OwnerIDs {
		if d.cfg.OwnerIDs[idx] == senderID {
			return true
		}
	}

	return false
}

// Handle executes the provided command text on behalf of the provided sender,
// returning a reply. Non-command text yields an empty reply.
func (d *Dispatcher) Handle(ctx context.Context, senderID string, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") {
		return ""
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "!close":
		return d.handleClose(ctx, senderID, args)
	case "!summary":
		return d.handleSummary(ctx, args)
	case "!addcoin":
		return d.handleAddCoin(ctx, senderID, args)
	case "!removecoin":
		return d.handleRemoveCoin(ctx, senderID, args)
	case "!listcoins":
		return d.handleListWatchlist(ctx, shared.Crypto)
	case "!addstock":
		return d.handleAddStock(ctx, senderID, args)
	case "!removestock":
		return d.handleRemoveStock(ctx, senderID, args)
	case "!liststocks":
		return d.handleListWatchlist(ctx, shared.Stock)
	case "!set":
		return d.handleSet(ctx, senderID, args)
	case "!get":
		return d.handleGet(ctx, args)
	case "!settings":
		return d.handleSettings(ctx)
	case "!scan":
		return d.handleScan(senderID)
	default:
		return ""
	}
}

// handleClose closes all open trades for the provided symbol and type.
func (d *Dispatcher) handleClose(ctx context.Context, senderID string, args []string) string {
	if !d.authorized(senderID) {
		return "Not authorized."
	}
	if len(args) == 0 {
		return "Usage: !close SYMBOL [TYPE] [NOTE]"
	}

	symbol := strings.ToUpper(args[0])
	signalType := shared.RSISignal
	if len(args) > 1 {
		signalType = shared.SignalType(strings.ToUpper(args[1]))
	}

	var note string
	if len(args) > 2 {
		note = strings.Join(args[2:], " ")
	}

	count, err := d.cfg.Trades.CloseTrade(ctx, symbol, signalType, note)
	if err != nil {
		d.cfg.Logger.Error().Msgf("closing trade: %v", err)
		return "Failed to close trade, check logs."
	}

	if count == 0 {
		return fmt.Sprintf("No open trades found for %s (%s).", symbol, signalType)
	}

	if note == "" {
		note = "no note provided"
	}

	return fmt.Sprintf("Closed %d trade(s) for %s (%s). Note: %s", count, symbol, signalType, note)
}

// summaryWindow computes the summary time boundary: midnight in the chosen
// timezone, pushed back by the requested day count.
func (d *Dispatcher) summaryWindow(args []string) (time.Time, string) {
	days := 1
	useUTC := false

	for idx := range args {
		if strings.EqualFold(args[idx], "utc") {
			useUTC = true
			continue
		}

		if n, err := strconv.Atoi(args[idx]); err == nil {
			days = min(max(n, 1), maxSummaryDays)
		}
	}

	loc := d.loc
	tz := defaultTimezone
	if useUTC {
		loc = time.UTC
		tz = "UTC"
	}

	now := time.Now().In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	since := midnight.AddDate(0, 0, -(days - 1))

	return since.UTC(), tz
}

// formatCounts formats the provided count map sorted by count descending.
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}

	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	parts := make([]string, 0, len(keys))
	for idx := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", keys[idx], counts[keys[idx]]))
	}

	return strings.Join(parts, ", ")
}

// handleSummary summarizes open trades and trades closed since the requested
// window boundary, grouped by type and symbol.
func (d *Dispatcher) handleSummary(ctx context.Context, args []string) string {
	since, tz := d.summaryWindow(args)

	open, err := d.cfg.Trades.FetchTrades(ctx, shared.TradeFilter{Status: shared.TradeOpen})
	if err != nil {
		d.cfg.Logger.Error().Msgf("fetching open trades: %v", err)
		return "Failed to fetch summary, check logs."
	}

	closed, err := d.cfg.Trades.FetchTradesSince(ctx, since, shared.TradeFilter{Status: shared.TradeClosed})
	if err != nil {
		d.cfg.Logger.Error().Msgf("fetching closed trades: %v", err)
		return "Failed to fetch summary, check logs."
	}

	openSummary := shared.SummarizeTrades(open)
	closedSummary := shared.SummarizeTrades(closed)

	return fmt.Sprintf("Summary (%s, since %s)\n"+
		"Open trades: %d\n  by type: %s\n  by symbol: %s\n"+
		"Closed trades: %d\n  by type: %s\n  by symbol: %s",
		tz, since.Format(time.RFC3339),
		openSummary.Total, formatCounts(openSummary.ByType), formatCounts(openSummary.BySymbol),
		closedSummary.Total, formatCounts(closedSummary.ByType), formatCounts(closedSummary.BySymbol))
}

// handleAddCoin upserts a coin into the crypto watch-list, guessing the
// ticker when it is omitted.
func (d *Dispatcher) handleAddCoin(ctx context.Context, senderID string, args []string) string {
	if !d.authorized(senderID) {
		return "Not authorized."
	}
	if len(args) == 0 {
		return "Usage: !addcoin <coin-id> [SYMBOL], eg. !addcoin bitcoin BTC"
	}

	coinID := strings.ToLower(args[0])
	symbol := guessSymbolFromID(coinID)
	if len(args) > 1 {
		symbol = strings.ToUpper(args[1])
	}

	instrument := &shared.Instrument{ID: coinID, Symbol: symbol, Kind: shared.Crypto}
	err := d.cfg.Watchlist.AddInstrument(ctx, instrument)
	if err != nil {
		d.cfg.Logger.Error().Msgf("adding coin: %v", err)
		return "Failed to add coin, check logs."
	}

	return fmt.Sprintf("Added coin %s (id: %s) to watchlist.", symbol, coinID)
}

// handleRemoveCoin removes a coin from the crypto watch-list.
func (d *Dispatcher) handleRemoveCoin(ctx context.Context, senderID string, args []string) string {
	if !d.authorized(senderID) {
		return "Not authorized."
	}
	if len(args) == 0 {
		return "Usage: !removecoin <coin-id>, eg. !removecoin bitcoin"
	}

	coinID := strings.ToLower(args[0])
	instrument := &shared.Instrument{ID: coinID, Kind: shared.Crypto}
	count, err := d.cfg.Watchlist.RemoveInstrument(ctx, instrument)
	if err != nil {
		d.cfg.Logger.Error().Msgf("removing coin: %v", err)
		return "Failed to remove coin, check logs."
	}

	if count == 0 {
		return fmt.Sprintf("No entries found for %s.", coinID)
	}

	return fmt.Sprintf("Removed %s from crypto watchlist (%d entry(s)).", coinID, count)
}

// handleAddStock upserts a stock into the stock watch-list.
func (d *Dispatcher) handleAddStock(ctx context.Context, senderID string, args []string) string {
	if !d.authorized(senderID) {
		return "Not authorized."
	}
	if len(args) == 0 {
		return "Usage: !addstock <SYMBOL>, eg. !addstock SOXL"
	}

	symbol := strings.ToUpper(args[0])
	instrument := &shared.Instrument{Symbol: symbol, Kind: shared.Stock}
	err := d.cfg.Watchlist.AddInstrument(ctx, instrument)
	if err != nil {
		d.cfg.Logger.Error().Msgf("adding stock: %v", err)
		return "Failed to add stock, check logs."
	}

	return fmt.Sprintf("Added stock %s to watchlist.", symbol)
}

// handleRemoveStock removes a stock from the stock watch-list.
func (d *Dispatcher) handleRemoveStock(ctx context.Context, senderID string, args []string) string {
	if !d.authorized(senderID) {
		return "Not authorized."
	}
	if len(args) == 0 {
		return "Usage: !removestock <SYMBOL>, eg. !removestock SOXL"
	}

	symbol := strings.ToUpper(args[0])
	instrument := &shared.Instrument{Symbol: symbol, Kind: shared.Stock}
	count, err := d.cfg.Watchlist.RemoveInstrument(ctx, instrument)
	if err != nil {
		d.cfg.Logger.Error().Msgf("removing stock: %v", err)
		return "Failed to remove stock, check logs."
	}

	if count == 0 {
		return fmt.Sprintf("No entries found for %s.", symbol)
	}

	return fmt.Sprintf("Removed %s from stock watchlist (%d entry(s)).", symbol, count)
}

// handleListWatchlist lists watch-list entries of the provided kind.
func (d *Dispatcher) handleListWatchlist(ctx context.Context, kind shared.InstrumentKind) string {
	instruments, err := d.cfg.Watchlist.ListInstruments(ctx, kind)
	if err != nil {
		d.cfg.Logger.Error().Msgf("listing %s watchlist: %v", kind, err)
		return "Failed to list watchlist, check logs."
	}

	if len(instruments) == 0 {
		return fmt.Sprintf("The %s watchlist is empty.", kind)
	}

	lines := make([]string, 0, len(instruments)+1)
	lines = append(lines, fmt.Sprintf("%s watchlist:", strings.ToUpper(kind.String()[:1])+kind.String()[1:]))
	for idx := range instruments {
		switch kind {
		case shared.Crypto:
			lines = append(lines, fmt.Sprintf("- %s (id: %s)", instruments[idx].Symbol, instruments[idx].ID))
		default:
			lines = append(lines, fmt.Sprintf("- %s", instruments[idx].Symbol))
		}
	}

	return strings.Join(lines, "\n")
}

// handleSet upserts a tunable setting.
func (d *Dispatcher) handleSet(ctx context.Context, senderID string, args []string) string {
	if !d.authorized(senderID) {
		return "Not authorized."
	}
	if len(args) < 2 {
		return "Usage: !set <KEY> <VALUE>, eg. !set RSI_PERIOD 14"
	}

	key := strings.ToUpper(args[0])
	value := strings.Join(args[1:], " ")
	err := d.cfg.Settings.SetSetting(ctx, key, value)
	if err != nil {
		d.cfg.Logger.Error().Msgf("setting %s: %v", key, err)
		return "Failed to store setting, check logs."
	}

	return fmt.Sprintf("Set %s = %s. Applies on the next scan (or run !scan).", key, value)
}

// handleGet fetches a single setting.
func (d *Dispatcher) handleGet(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: !get <KEY>"
	}

	key := strings.ToUpper(args[0])
	value, ok, err := d.cfg.Settings.GetSetting(ctx, key)
	if err != nil {
		d.cfg.Logger.Error().Msgf("fetching setting %s: %v", key, err)
		return "Failed to fetch setting, check logs."
	}

	if !ok {
		return fmt.Sprintf("%s not set.", key)
	}

	return fmt.Sprintf("%s = %s", key, value)
}

// handleSettings lists all stored settings.
func (d *Dispatcher) handleSettings(ctx context.Context) string {
	settings, err := d.cfg.Settings.AllSettings(ctx)
	if err != nil {
		d.cfg.Logger.Error().Msgf("fetching settings: %v", err)
		return "Failed to fetch settings, check logs."
	}

	if len(settings) == 0 {
		return "No settings stored."
	}

	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys)+1)
	lines = append(lines, "Settings:")
	for idx := range keys {
		lines = append(lines, fmt.Sprintf("- %s = %s", keys[idx], settings[keys[idx]]))
	}

	return strings.Join(lines, "\n")
}

// handleScan queues an immediate scan cycle.
func (d *Dispatcher) handleScan(senderID string) string {
	if !d.authorized(senderID) {
		return "Not authorized."
	}

	d.cfg.RequestScan()
	return "Scan requested, running shortly."
}
