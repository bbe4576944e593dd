package scan

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"

	"tradewatch/shared"
)

type settingsMock struct {
	settings map[string]string
	err      error
}

func (m *settingsMock) SetSetting(ctx context.Context, key string, value string) error {
	m.settings[key] = value
	return nil
}

func (m *settingsMock) GetSetting(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.settings[key]
	return v, ok, m.err
}

func (m *settingsMock) AllSettings(ctx context.Context) (map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.settings, nil
}

type watchlistMock struct {
	instruments map[shared.InstrumentKind][]shared.Instrument
	err         error
}

func (m *watchlistMock) AddInstrument(ctx context.Context, instrument *shared.Instrument) error {
	m.instruments[instrument.Kind] = append(m.instruments[instrument.Kind], *instrument)
	return nil
}

func (m *watchlistMock) RemoveInstrument(ctx context.Context, instrument *shared.Instrument) (int, error) {
	return 0, nil
}

func (m *watchlistMock) ListInstruments(ctx context.Context, kind shared.InstrumentKind) ([]shared.Instrument, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.instruments[kind], nil
}

type stockFetcherMock struct {
	prices map[string][]float64
	errs   map[string]error
	calls  []string
}

func (m *stockFetcherMock) FetchStockPrices(ctx context.Context, symbol string) ([]float64, error) {
	m.calls = append(m.calls, symbol)
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	return m.prices[symbol], nil
}

type cryptoFetcherMock struct {
	prices map[string][]float64
	errs   map[string]error
	calls  []string
}

func (m *cryptoFetcherMock) FetchCoinPrices(ctx context.Context, coinID string) ([]float64, error) {
	m.calls = append(m.calls, coinID)
	if err := m.errs[coinID]; err != nil {
		return nil, err
	}
	return m.prices[coinID], nil
}

// decreasingSeries generates a strictly decreasing price series long enough
// to fire the oversold rule.
func decreasingSeries(n int) []float64 {
	prices := make([]float64, 0, n)
	for idx := 0; idx < n; idx++ {
		prices = append(prices, 500-float64(idx))
	}
	return prices
}

type managerMocks struct {
	settings  *settingsMock
	watchlist *watchlistMock
	stocks    *stockFetcherMock
	coins     *cryptoFetcherMock
	opened    []shared.TradeRecord
	openErr   error
	notified  []string
}

func setupManager(t *testing.T, mocks *managerMocks) *Manager {
	if mocks.settings == nil {
		mocks.settings = &settingsMock{settings: map[string]string{SettingFetchDelayMS: "0"}}
	}
	if mocks.watchlist == nil {
		mocks.watchlist = &watchlistMock{instruments: map[shared.InstrumentKind][]shared.Instrument{}}
	}
	if mocks.stocks == nil {
		mocks.stocks = &stockFetcherMock{}
	}
	if mocks.coins == nil {
		mocks.coins = &cryptoFetcherMock{}
	}

	logger := zerolog.New(nil)
	cfg := &ManagerConfig{
		Settings:     mocks.settings,
		Watchlist:    mocks.watchlist,
		StockClient:  mocks.stocks,
		CryptoClient: mocks.coins,
		OpenTrade: func(ctx context.Context, record *shared.TradeRecord) error {
			if mocks.openErr != nil {
				return mocks.openErr
			}
			mocks.opened = append(mocks.opened, *record)
			return nil
		},
		Notify: func(ctx context.Context, message string) {
			mocks.notified = append(mocks.notified, message)
		},
		Logger: &logger,
	}

	mgr, err := NewManager(cfg)
	assert.NoError(t, err)

	return mgr
}

func TestScanManagerConfigValidate(t *testing.T) {
	logger := zerolog.New(nil)
	baseCfg := func() *ManagerConfig {
		return &ManagerConfig{
			Settings:     &settingsMock{settings: map[string]string{}},
			Watchlist:    &watchlistMock{instruments: map[shared.InstrumentKind][]shared.Instrument{}},
			StockClient:  &stockFetcherMock{},
			CryptoClient: &cryptoFetcherMock{},
			OpenTrade:    func(ctx context.Context, record *shared.TradeRecord) error { return nil },
			Notify:       func(ctx context.Context, message string) {},
			Logger:       &logger,
		}
	}

	tests := []struct {
		name        string
		modify      func(cfg *ManagerConfig)
		wantErr     bool
		errContains string
	}{
		{
			name:    "valid config returns nil",
			modify:  func(cfg *ManagerConfig) {},
			wantErr: false,
		},
		{
			name:        "missing settings store",
			modify:      func(cfg *ManagerConfig) { cfg.Settings = nil },
			wantErr:     true,
			errContains: "settings store cannot be nil",
		},
		{
			name:        "missing watchlist store",
			modify:      func(cfg *ManagerConfig) { cfg.Watchlist = nil },
			wantErr:     true,
			errContains: "watchlist store cannot be nil",
		},
		{
			name:        "missing stock client",
			modify:      func(cfg *ManagerConfig) { cfg.StockClient = nil },
			wantErr:     true,
			errContains: "stock client cannot be nil",
		},
		{
			name:        "missing crypto client",
			modify:      func(cfg *ManagerConfig) { cfg.CryptoClient = nil },
			wantErr:     true,
			errContains: "crypto client cannot be nil",
		},
		{
			name:        "missing open trade function",
			modify:      func(cfg *ManagerConfig) { cfg.OpenTrade = nil },
			wantErr:     true,
			errContains: "open trade function cannot be nil",
		},
		{
			name:        "missing notify function",
			modify:      func(cfg *ManagerConfig) { cfg.Notify = nil },
			wantErr:     true,
			errContains: "notify function cannot be nil",
		},
		{
			name:        "missing logger",
			modify:      func(cfg *ManagerConfig) { cfg.Logger = nil },
			wantErr:     true,
			errContains: "logger cannot be nil",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := baseCfg()
			test.modify(cfg)

			err := cfg.Validate()
			if !test.wantErr {
				assert.NoError(t, err)
				return
			}

			assert.Error(t, err)
			assert.Equal(t, strings.Contains(err.Error(), test.errContains), true)
		})
	}
}

func TestResolveInstrumentsFallback(t *testing.T) {
	logger := zerolog.New(nil)
	ctx := context.Background()

	// A store error degrades to the built-in defaults.
	failing := &watchlistMock{err: fmt.Errorf("store unreachable")}
	instruments := ResolveInstruments(ctx, failing, shared.Crypto, &logger)
	assert.Equal(t, len(instruments), len(defaultCoins))

	// An empty watch-list degrades to the built-in defaults.
	empty := &watchlistMock{instruments: map[shared.InstrumentKind][]shared.Instrument{}}
	instruments = ResolveInstruments(ctx, empty, shared.Stock, &logger)
	assert.Equal(t, len(instruments), len(defaultStocks))
	assert.Equal(t, instruments[0].Symbol, "SOXL")

	// A populated watch-list is used as-is.
	populated := &watchlistMock{instruments: map[shared.InstrumentKind][]shared.Instrument{
		shared.Crypto: {{ID: "dogecoin", Symbol: "DOGE", Kind: shared.Crypto}},
	}}
	instruments = ResolveInstruments(ctx, populated, shared.Crypto, &logger)
	assert.Equal(t, len(instruments), 1)
	assert.Equal(t, instruments[0].ID, "dogecoin")
}

func TestScanCycleIsolatesInstrumentFailures(t *testing.T) {
	mocks := &managerMocks{
		watchlist: &watchlistMock{instruments: map[shared.InstrumentKind][]shared.Instrument{
			shared.Crypto: {
				{ID: "bitcoin", Symbol: "BTC", Kind: shared.Crypto},
				{ID: "ethereum", Symbol: "ETH", Kind: shared.Crypto},
				{ID: "litecoin", Symbol: "LTC", Kind: shared.Crypto},
			},
		}},
		coins: &cryptoFetcherMock{
			prices: map[string][]float64{},
			errs:   map[string]error{"ethereum": fmt.Errorf("rate limited")},
		},
	}

	mgr := setupManager(t, mocks)
	mgr.runCycle(context.Background())

	// The failing second coin must not prevent the third from being scanned,
	// and the stock pass falls back to its default watch-list.
	assert.Equal(t, mocks.coins.calls, []string{"bitcoin", "ethereum", "litecoin"})
	assert.Equal(t, mocks.stocks.calls, []string{"SOXL"})
}

func TestScanOpensTradeOnOversoldSignal(t *testing.T) {
	series := decreasingSeries(30)
	mocks := &managerMocks{
		watchlist: &watchlistMock{instruments: map[shared.InstrumentKind][]shared.Instrument{
			shared.Stock:  {{Symbol: "SOXL", Kind: shared.Stock}},
			shared.Crypto: {{ID: "bitcoin", Symbol: "BTC", Kind: shared.Crypto}},
		}},
		stocks: &stockFetcherMock{prices: map[string][]float64{"SOXL": series}},
		coins:  &cryptoFetcherMock{prices: map[string][]float64{"bitcoin": {10, 10, 10}}},
	}

	mgr := setupManager(t, mocks)
	mgr.runCycle(context.Background())

	assert.Equal(t, len(mocks.opened), 1)
	assert.Equal(t, mocks.opened[0].Symbol, "SOXL")
	assert.Equal(t, mocks.opened[0].Type, shared.RSISignal)
	assert.Equal(t, mocks.opened[0].Price, series[len(series)-1])

	assert.Equal(t, len(mocks.notified), 1)
	assert.Equal(t, strings.Contains(mocks.notified[0], "SOXL"), true)
}

func TestScanOpensTradeOnBreakoutSignal(t *testing.T) {
	mocks := &managerMocks{
		watchlist: &watchlistMock{instruments: map[shared.InstrumentKind][]shared.Instrument{
			shared.Stock:  {{Symbol: "TQQQ", Kind: shared.Stock}},
			shared.Crypto: {{ID: "bitcoin", Symbol: "BTC", Kind: shared.Crypto}},
		}},
		stocks: &stockFetcherMock{prices: map[string][]float64{"TQQQ": {10, 10, 10, 10, 10.21}}},
		coins:  &cryptoFetcherMock{prices: map[string][]float64{"bitcoin": {10, 10, 10}}},
	}

	mgr := setupManager(t, mocks)
	mgr.runCycle(context.Background())

	assert.Equal(t, len(mocks.opened), 1)
	assert.Equal(t, mocks.opened[0].Type, shared.BreakoutSignal)
	assert.Equal(t, mocks.opened[0].Price, 10.21)
}

func TestScanDoesNotDedupeRepeatedSignals(t *testing.T) {
	// A rule firing for a (symbol, type) that already has an open record
	// still opens another record, deduplication is not applied.
	series := decreasingSeries(30)
	mocks := &managerMocks{
		watchlist: &watchlistMock{instruments: map[shared.InstrumentKind][]shared.Instrument{
			shared.Stock:  {{Symbol: "SOXL", Kind: shared.Stock}},
			shared.Crypto: {{ID: "bitcoin", Symbol: "BTC", Kind: shared.Crypto}},
		}},
		stocks: &stockFetcherMock{prices: map[string][]float64{"SOXL": series}},
		coins:  &cryptoFetcherMock{prices: map[string][]float64{"bitcoin": {10, 10, 10}}},
	}

	mgr := setupManager(t, mocks)
	mgr.runCycle(context.Background())
	mgr.runCycle(context.Background())

	assert.Equal(t, len(mocks.opened), 2)
	assert.Equal(t, mocks.opened[0].Symbol, mocks.opened[1].Symbol)
	assert.Equal(t, mocks.opened[0].Type, mocks.opened[1].Type)
}

func TestScanSwallowsOpenTradeFailures(t *testing.T) {
	series := decreasingSeries(30)
	mocks := &managerMocks{
		watchlist: &watchlistMock{instruments: map[shared.InstrumentKind][]shared.Instrument{
			shared.Stock: {
				{Symbol: "SOXL", Kind: shared.Stock},
				{Symbol: "TQQQ", Kind: shared.Stock},
			},
			shared.Crypto: {{ID: "bitcoin", Symbol: "BTC", Kind: shared.Crypto}},
		}},
		stocks: &stockFetcherMock{prices: map[string][]float64{
			"SOXL": series,
			"TQQQ": {10, 10, 10},
		}},
		coins:   &cryptoFetcherMock{prices: map[string][]float64{"bitcoin": {10, 10, 10}}},
		openErr: fmt.Errorf("store write failed"),
	}

	mgr := setupManager(t, mocks)
	mgr.runCycle(context.Background())

	// The write failure is swallowed: the notification still went out and
	// the remaining instruments were still scanned.
	assert.Equal(t, len(mocks.notified), 1)
	assert.Equal(t, mocks.stocks.calls, []string{"SOXL", "TQQQ"})
	assert.Equal(t, mocks.coins.calls, []string{"bitcoin"})
}

func TestScanRefreshesTunablesEachCycle(t *testing.T) {
	settings := &settingsMock{settings: map[string]string{
		SettingFetchDelayMS: "0",
		SettingRSIPeriod:    "5",
	}}
	series := []float64{10, 9, 8, 7, 6, 5}

	mocks := &managerMocks{
		settings: settings,
		watchlist: &watchlistMock{instruments: map[shared.InstrumentKind][]shared.Instrument{
			shared.Stock:  {{Symbol: "SOXL", Kind: shared.Stock}},
			shared.Crypto: {{ID: "bitcoin", Symbol: "BTC", Kind: shared.Crypto}},
		}},
		stocks: &stockFetcherMock{prices: map[string][]float64{"SOXL": series}},
		coins:  &cryptoFetcherMock{prices: map[string][]float64{"bitcoin": {10, 10, 10}}},
	}

	mgr := setupManager(t, mocks)

	// Six samples satisfy the stored period of five but not the default.
	mgr.runCycle(context.Background())
	assert.Equal(t, len(mocks.opened), 1)

	// Removing the override restores the default period, the series is now
	// too short and the rule abstains.
	delete(settings.settings, SettingRSIPeriod)
	mgr.runCycle(context.Background())
	assert.Equal(t, len(mocks.opened), 1)
}

func TestSendScanRequestDropsWhenPending(t *testing.T) {
	mgr := setupManager(t, &managerMocks{})

	mgr.SendScanRequest()
	mgr.SendScanRequest()

	assert.Equal(t, len(mgr.scanRequests), 1)
}

func TestTunablesApply(t *testing.T) {
	logger := zerolog.New(nil)

	tests := []struct {
		name     string
		settings map[string]string
		want     Tunables
	}{
		{
			name:     "empty settings keep defaults",
			settings: map[string]string{},
			want:     DefaultTunables(),
		},
		{
			name: "valid overrides applied",
			settings: map[string]string{
				SettingRSIPeriod:           "21",
				SettingBreakoutThreshold:   "3.5",
				SettingFetchDelayMS:        "500",
				SettingScanIntervalMinutes: "30",
			},
			want: Tunables{
				RSIPeriod:         21,
				BreakoutThreshold: 3.5,
				FetchDelay:        time.Millisecond * 500,
				ScanInterval:      time.Minute * 30,
			},
		},
		{
			name: "malformed values ignored",
			settings: map[string]string{
				SettingRSIPeriod:         "fourteen",
				SettingBreakoutThreshold: "-2",
			},
			want: DefaultTunables(),
		},
		{
			name: "out of bounds interval ignored",
			settings: map[string]string{
				SettingScanIntervalMinutes: "4",
			},
			want: DefaultTunables(),
		},
		{
			name: "interval bounds inclusive",
			settings: map[string]string{
				SettingScanIntervalMinutes: "720",
			},
			want: func() Tunables {
				tunables := DefaultTunables()
				tunables.ScanInterval = time.Minute * 720
				return tunables
			}(),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tunables := DefaultTunables()
			tunables.Apply(test.settings, &logger)
			assert.Equal(t, tunables, test.want)
		})
	}
}
