package store

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"

	"tradewatch/shared"
)

const (
	// SQL statements.
	createTradeTableSQL     = "CREATE TABLE IF NOT EXISTS trade (id TEXT PRIMARY KEY, symbol TEXT, type TEXT, price REAL, reason TEXT, status TEXT, note TEXT, createdat TEXT, closedat TEXT)"
	createWatchlistTableSQL = "CREATE TABLE IF NOT EXISTS watchlist (key TEXT PRIMARY KEY, kind TEXT, cid TEXT, symbol TEXT)"
	createSettingTableSQL   = "CREATE TABLE IF NOT EXISTS setting (key TEXT PRIMARY KEY, value TEXT)"
	insertTradeSQL          = "INSERT INTO trade(id, symbol, type, price, reason, status, note, createdat, closedat) VALUES(?,?,?,?,?,?,?,?,?)"
	findOpenTradesSQL       = "SELECT id FROM trade WHERE symbol = ? AND type = ? AND status = ? ORDER BY createdat DESC"
	closeTradeSQL           = "UPDATE trade SET status = ?, note = ?, closedat = ? WHERE id = ?"
	upsertWatchlistSQL      = "INSERT INTO watchlist(key, kind, cid, symbol) VALUES(?,?,?,?) ON CONFLICT(key) DO UPDATE SET cid = excluded.cid, symbol = excluded.symbol"
	countWatchlistSQL       = "SELECT COUNT(*) AS count FROM watchlist WHERE key = ?"
	deleteWatchlistSQL      = "DELETE FROM watchlist WHERE key = ?"
	listWatchlistSQL        = "SELECT cid, symbol FROM watchlist WHERE kind = ? ORDER BY key"
	upsertSettingSQL        = "INSERT INTO setting(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"
	findSettingSQL          = "SELECT value FROM setting WHERE key = ?"
	allSettingsSQL          = "SELECT key, value FROM setting"

	// timeLayout is the storage layout for timestamps. It is fixed width so
	// lexicographic comparisons in SQL match chronological order.
	timeLayout = time.RFC3339
)

// StoreConfig is the configuration for the store.
type StoreConfig struct {
	// Endpoint represents the store connection endpoint.
	Endpoint string
	// User is the store user.
	User string
	// Pass is the store user pass.
	Pass string
	// Logger is the store logger.
	Logger *zerolog.Logger
}

// Store represents the durable record and settings store.
type Store struct {
	cfg    *StoreConfig
	client *rqlitehttp.Client
}

// Ensure the store implements the expected storage interfaces.
var _ shared.TradeStore = (*Store)(nil)
var _ shared.WatchlistStore = (*Store)(nil)
var _ shared.SettingsStore = (*Store)(nil)

// NewStore initializes a new store connection.
func NewStore(ctx context.Context, cfg *StoreConfig) (*Store, error) {
	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating store client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	s := &Store{
		cfg:    cfg,
		client: client,
	}

	err = s.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping store: %w", err)
	}

	return s, nil
}

// bootstrap initializes the store schema.
func (s *Store) bootstrap(ctx context.Context) error {
	resp, err := s.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createTradeTableSQL},
		{SQL: createWatchlistTableSQL},
		{SQL: createSettingTableSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("creating schema: %d -> %s", idx, errStr)
	}

	return nil
}

// rowString coerces the provided row field to a string, returning an empty
// string for missing or null fields.
func rowString(row map[string]any, key string) string {
	v, ok := row[key].(string)
	if !ok {
		return ""
	}

	return v
}

// rowFloat coerces the provided row field to a float, returning zero for
// missing or null fields.
func rowFloat(row map[string]any, key string) float64 {
	v, ok := row[key].(float64)
	if !ok {
		return 0
	}

	return v
}

// rowTime parses the provided row field as a stored timestamp, returning the
// zero time for missing, null or malformed fields.
func rowTime(row map[string]any, key string) time.Time {
	v := rowString(row, key)
	if v == "" {
		return time.Time{}
	}

	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}

	return t
}

// parseTradeRow parses a trade record from the provided row.
func parseTradeRow(row map[string]any) shared.TradeRecord {
	return shared.TradeRecord{
		ID:        rowString(row, "id"),
		Symbol:    rowString(row, "symbol"),
		Type:      shared.SignalType(rowString(row, "type")),
		Price:     rowFloat(row, "price"),
		Reason:    rowString(row, "reason"),
		Status:    shared.TradeStatus(rowString(row, "status")),
		Note:      rowString(row, "note"),
		CreatedAt: rowTime(row, "createdat"),
		ClosedAt:  rowTime(row, "closedat"),
	}
}

// queryRows runs the provided query and returns its associated rows.
func (s *Store) queryRows(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	resp, err := s.client.QuerySingle(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	results := resp.GetQueryResultsAssoc()
	if len(results) == 0 {
		return nil, nil
	}

	return results[0].Rows, nil
}

// OpenTrade persists the provided trade record with an open status.
func (s *Store) OpenTrade(ctx context.Context, record *shared.TradeRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.Status = shared.TradeOpen

	resp, err := s.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: insertTradeSQL,
			PositionalParams: []any{record.ID, strings.ToUpper(record.Symbol), strings.ToUpper(string(record.Type)),
				record.Price, record.Reason, string(record.Status), record.Note,
				record.CreatedAt.UTC().Format(timeLayout), ""},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return fmt.Errorf("opening trade for %s: %w", record.Symbol, err)
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("opening trade for %s: %d -> %s", record.Symbol, idx, errStr)
	}

	return nil
}

// CloseTrade closes all open trade records matching the provided symbol and
// signal type, merging the closed status, note and close time into each
// matched record. It reports the number of records closed; zero matches is
// not an error.
func (s *Store) CloseTrade(ctx context.Context, symbol string, signalType shared.SignalType, note string) (int, error) {
	rows, err := s.queryRows(ctx, findOpenTradesSQL, strings.ToUpper(symbol),
		strings.ToUpper(string(signalType)), string(shared.TradeOpen))
	if err != nil {
		return 0, fmt.Errorf("finding open trades for %s (%s): %w", symbol, signalType, err)
	}

	if len(rows) == 0 {
		return 0, nil
	}

	closedAt := time.Now().UTC().Format(timeLayout)
	stmts := make(rqlitehttp.SQLStatements, 0, len(rows))
	for idx := range rows {
		id := rowString(rows[idx], "id")
		if id == "" {
			s.cfg.Logger.Error().Msgf("unexpected open trade row for %s: %s", symbol, spew.Sdump(rows[idx]))
			continue
		}

		stmts = append(stmts, &rqlitehttp.SQLStatement{
			SQL:              closeTradeSQL,
			PositionalParams: []any{string(shared.TradeClosed), note, closedAt, id},
		})
	}

	if len(stmts) == 0 {
		return 0, nil
	}

	resp, err := s.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return 0, fmt.Errorf("closing trades for %s (%s): %w", symbol, signalType, err)
	}

	has, idx, errStr := resp.HasError()
	if has {
		return 0, fmt.Errorf("closing trades for %s (%s): %d -> %s", symbol, signalType, idx, errStr)
	}

	return len(stmts), nil
}

// tradeQuery builds a filtered trade query ordered newest first.
func tradeQuery(filter shared.TradeFilter, since time.Time) (string, []any) {
	var conds []string
	var args []any

	if filter.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, strings.ToUpper(filter.Symbol))
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, strings.ToUpper(string(filter.Type)))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !since.IsZero() {
		conds = append(conds, "createdat >= ?")
		args = append(args, since.UTC().Format(timeLayout))
	}

	sql := "SELECT * FROM trade"
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY createdat DESC"

	return sql, args
}

// FetchTrades fetches trade records matching the provided filter, ordered
// newest first.
func (s *Store) FetchTrades(ctx context.Context, filter shared.TradeFilter) ([]shared.TradeRecord, error) {
	return s.fetchTrades(ctx, filter, time.Time{})
}

// FetchTradesSince fetches trade records created at or after the provided
// time and matching the provided filter, ordered newest first.
func (s *Store) FetchTradesSince(ctx context.Context, since time.Time, filter shared.TradeFilter) ([]shared.TradeRecord, error) {
	return s.fetchTrades(ctx, filter, since)
}

// fetchTrades fetches trade records matching the provided filter and
// optional time boundary.
func (s *Store) fetchTrades(ctx context.Context, filter shared.TradeFilter, since time.Time) ([]shared.TradeRecord, error) {
	sql, args := tradeQuery(filter, since)
	rows, err := s.queryRows(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching trades: %w", err)
	}

	trades := make([]shared.TradeRecord, 0, len(rows))
	for idx := range rows {
		trades = append(trades, parseTradeRow(rows[idx]))
	}

	return trades, nil
}

// AddInstrument upserts the provided instrument into the watch-list. Adding
// an already present instrument is a no-op.
func (s *Store) AddInstrument(ctx context.Context, instrument *shared.Instrument) error {
	resp, err := s.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: upsertWatchlistSQL,
			PositionalParams: []any{instrument.Key(), instrument.Kind.String(),
				strings.ToLower(instrument.ID), strings.ToUpper(instrument.Symbol)},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return fmt.Errorf("adding %s to watchlist: %w", instrument.Key(), err)
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("adding %s to watchlist: %d -> %s", instrument.Key(), idx, errStr)
	}

	return nil
}

// RemoveInstrument removes the provided instrument from the watch-list,
// reporting the number of entries removed. Zero matches is not an error.
func (s *Store) RemoveInstrument(ctx context.Context, instrument *shared.Instrument) (int, error) {
	rows, err := s.queryRows(ctx, countWatchlistSQL, instrument.Key())
	if err != nil {
		return 0, fmt.Errorf("counting watchlist entries for %s: %w", instrument.Key(), err)
	}

	count := 0
	if len(rows) > 0 {
		count = int(rowFloat(rows[0], "count"))
	}

	if count == 0 {
		return 0, nil
	}

	resp, err := s.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: deleteWatchlistSQL, PositionalParams: []any{instrument.Key()}},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return 0, fmt.Errorf("removing %s from watchlist: %w", instrument.Key(), err)
	}

	has, idx, errStr := resp.HasError()
	if has {
		return 0, fmt.Errorf("removing %s from watchlist: %d -> %s", instrument.Key(), idx, errStr)
	}

	return count, nil
}

// ListInstruments fetches all watch-list entries of the provided kind.
func (s *Store) ListInstruments(ctx context.Context, kind shared.InstrumentKind) ([]shared.Instrument, error) {
	rows, err := s.queryRows(ctx, listWatchlistSQL, kind.String())
	if err != nil {
		return nil, fmt.Errorf("listing %s watchlist: %w", kind, err)
	}

	instruments := make([]shared.Instrument, 0, len(rows))
	for idx := range rows {
		instruments = append(instruments, shared.Instrument{
			ID:     rowString(rows[idx], "cid"),
			Symbol: strings.ToUpper(rowString(rows[idx], "symbol")),
			Kind:   kind,
		})
	}

	return instruments, nil
}

// SetSetting upserts the provided setting. Keys are normalized to uppercase.
func (s *Store) SetSetting(ctx context.Context, key string, value string) error {
	resp, err := s.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: upsertSettingSQL, PositionalParams: []any{strings.ToUpper(key), value}},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("setting %s: %d -> %s", key, idx, errStr)
	}

	return nil
}

// GetSetting fetches the value of the provided setting key. The boolean
// reports whether the key is set.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	rows, err := s.queryRows(ctx, findSettingSQL, strings.ToUpper(key))
	if err != nil {
		return "", false, fmt.Errorf("fetching setting %s: %w", key, err)
	}

	if len(rows) == 0 {
		return "", false, nil
	}

	return rowString(rows[0], "value"), true, nil
}

// AllSettings fetches all stored settings as a flat map.
func (s *Store) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.queryRows(ctx, allSettingsSQL)
	if err != nil {
		return nil, fmt.Errorf("fetching settings: %w", err)
	}

	settings := make(map[string]string, len(rows))
	for idx := range rows {
		key := rowString(rows[idx], "key")
		if key == "" {
			s.cfg.Logger.Error().Msgf("unexpected setting row: %s", spew.Sdump(rows[idx]))
			continue
		}

		settings[key] = rowString(rows[idx], "value")
	}

	return settings, nil
}
