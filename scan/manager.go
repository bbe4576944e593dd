package scan

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"tradewatch/rules"
	"tradewatch/shared"
)

const (
	// scanJobTag tags the periodic scan job on the scheduler.
	scanJobTag = "scan"
	// maxStartupJitter is the ceiling for the random startup delay, applied
	// once so simultaneously started instances do not hit shared upstream
	// endpoints in lockstep.
	maxStartupJitter = time.Second * 10
)

// ManagerConfig represents the scan manager configuration.
type ManagerConfig struct {
	// Settings fetches tunable settings.
	Settings shared.SettingsStore
	// Watchlist fetches the instruments to scan.
	Watchlist shared.WatchlistStore
	// StockClient fetches stock price series.
	StockClient shared.StockFetcher
	// CryptoClient fetches crypto price series.
	CryptoClient shared.CryptoFetcher
	// OpenTrade persists the provided trade record with an open status.
	OpenTrade func(ctx context.Context, record *shared.TradeRecord) error
	// Notify sends the provided message, best-effort.
	Notify func(ctx context.Context, message string)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if cfg.Settings == nil {
		errs = errors.Join(errs, fmt.Errorf("settings store cannot be nil"))
	}
	if cfg.Watchlist == nil {
		errs = errors.Join(errs, fmt.Errorf("watchlist store cannot be nil"))
	}
	if cfg.StockClient == nil {
		errs = errors.Join(errs, fmt.Errorf("stock client cannot be nil"))
	}
	if cfg.CryptoClient == nil {
		errs = errors.Join(errs, fmt.Errorf("crypto client cannot be nil"))
	}
	if cfg.OpenTrade == nil {
		errs = errors.Join(errs, fmt.Errorf("open trade function cannot be nil"))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("notify function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager orchestrates scan cycles over the resolved watch-lists.
type Manager struct {
	cfg               *ManagerConfig
	tunables          Tunables
	jobScheduler      *gocron.Scheduler
	scanRequests      chan struct{}
	scheduledInterval time.Duration
}

// NewManager initializes the scan manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	mgr := &Manager{
		cfg:          cfg,
		tunables:     DefaultTunables(),
		jobScheduler: gocron.NewScheduler(time.UTC),
		// The request channel doubles as the re-entrancy guard: a single
		// consumer and a buffer of one means ticks or scan requests arriving
		// while a cycle is queued or running are dropped.
		scanRequests: make(chan struct{}, 1),
	}

	return mgr, nil
}

// SendScanRequest queues an immediate scan cycle. The request is dropped when
// a cycle is already queued or in progress.
func (m *Manager) SendScanRequest() {
	select {
	case m.scanRequests <- struct{}{}:
		// do nothing.
	default:
		m.cfg.Logger.Info().Msg("scan already pending, dropping scan request")
	}
}

// refreshTunables rebuilds the scan tunables from defaults and stored
// settings. A settings fetch failure keeps the last known tunables and never
// blocks a cycle.
func (m *Manager) refreshTunables(ctx context.Context) {
	settings, err := m.cfg.Settings.AllSettings(ctx)
	if err != nil {
		m.cfg.Logger.Error().Msgf("refreshing settings, keeping current tunables: %v", err)
		return
	}

	tunables := DefaultTunables()
	tunables.Apply(settings, m.cfg.Logger)
	m.tunables = tunables
}

// fetchPrices fetches the price series for the provided instrument from its
// kind's provider.
func (m *Manager) fetchPrices(ctx context.Context, instrument *shared.Instrument) ([]float64, error) {
	switch instrument.Kind {
	case shared.Crypto:
		return m.cfg.CryptoClient.FetchCoinPrices(ctx, instrument.ID)
	default:
		return m.cfg.StockClient.FetchStockPrices(ctx, instrument.Symbol)
	}
}

// scanInstrument fetches the instrument's price series and runs both signal
// rules over it. Each firing rule sends a notification and opens a trade
// record. Open-trade write failures are logged and swallowed, the
// notification already carries the signal's primary value.
func (m *Manager) scanInstrument(ctx context.Context, instrument *shared.Instrument, tunables Tunables) error {
	prices, err := m.fetchPrices(ctx, instrument)
	if err != nil {
		return fmt.Errorf("fetching prices: %w", err)
	}

	if signal := rules.EvaluateOversold(instrument.Symbol, prices, tunables.RSIPeriod); signal != "" {
		m.cfg.Notify(ctx, signal)
		m.openTrade(ctx, instrument, shared.RSISignal, prices[len(prices)-1], signal)
	}

	if signal := rules.DetectBreakout(instrument.Symbol, prices, tunables.BreakoutThreshold, 0); signal != "" {
		m.cfg.Notify(ctx, signal)
		m.openTrade(ctx, instrument, shared.BreakoutSignal, prices[len(prices)-1], signal)
	}

	return nil
}

// openTrade opens a trade record for the provided fired signal, swallowing
// write failures.
func (m *Manager) openTrade(ctx context.Context, instrument *shared.Instrument, signalType shared.SignalType, price float64, reason string) {
	record := &shared.TradeRecord{
		Symbol: instrument.Symbol,
		Type:   signalType,
		Price:  price,
		Reason: reason,
	}

	err := m.cfg.OpenTrade(ctx, record)
	if err != nil {
		m.cfg.Logger.Error().Msgf("opening %s trade for %s: %v", signalType, instrument.Symbol, err)
	}
}

// runCycle executes one full scan pass: refresh tunables, resolve both
// watch-lists, then process each instrument sequentially with the configured
// inter-call delay. A single instrument's failure never aborts the rest of
// the cycle.
func (m *Manager) runCycle(ctx context.Context) {
	m.cfg.Logger.Info().Msg("running scan cycle")

	m.refreshTunables(ctx)
	tunables := m.tunables

	instruments := ResolveInstruments(ctx, m.cfg.Watchlist, shared.Stock, m.cfg.Logger)
	instruments = append(instruments, ResolveInstruments(ctx, m.cfg.Watchlist, shared.Crypto, m.cfg.Logger)...)

	for idx := range instruments {
		err := m.scanInstrument(ctx, &instruments[idx], tunables)
		if err != nil {
			m.cfg.Logger.Error().Msgf("scanning %s: %v", instruments[idx].Key(), err)
		}

		// Pace outbound calls to respect provider rate limits.
		if tunables.FetchDelay > 0 && idx < len(instruments)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(tunables.FetchDelay):
			}
		}
	}

	m.cfg.Logger.Info().Msg("scan cycle finished")
}

// rescheduleScans moves the periodic scan job to the current interval when an
// operator changed it, taking effect for the next cycle.
func (m *Manager) rescheduleScans() {
	if m.tunables.ScanInterval == m.scheduledInterval {
		return
	}

	err := m.jobScheduler.RemoveByTag(scanJobTag)
	if err != nil {
		m.cfg.Logger.Error().Msgf("removing scan job: %v", err)
	}

	_, err = m.jobScheduler.Every(m.tunables.ScanInterval).Tag(scanJobTag).Do(m.SendScanRequest)
	if err != nil {
		m.cfg.Logger.Error().Msgf("rescheduling scan job: %v", err)
		return
	}

	m.cfg.Logger.Info().Msgf("scan interval now %s", m.tunables.ScanInterval)
	m.scheduledInterval = m.tunables.ScanInterval
}

// Run manages the lifecycle processes of the scan manager.
func (m *Manager) Run(ctx context.Context) {
	jitter := time.Duration(rand.Int63n(int64(maxStartupJitter)))
	m.cfg.Logger.Info().Msgf("startup jitter: waiting %s", jitter)

	select {
	case <-ctx.Done():
		return
	case <-time.After(jitter):
	}

	// Initial settings load so a stored scan interval takes effect from the
	// first schedule, then an immediate first cycle.
	m.refreshTunables(ctx)
	m.SendScanRequest()

	_, err := m.jobScheduler.Every(m.tunables.ScanInterval).Tag(scanJobTag).Do(m.SendScanRequest)
	if err != nil {
		m.cfg.Logger.Error().Msgf("scheduling scan job: %v", err)
	}
	m.scheduledInterval = m.tunables.ScanInterval
	m.jobScheduler.StartAsync()

	for {
		select {
		case <-ctx.Done():
			m.jobScheduler.Stop()
			return
		case <-m.scanRequests:
			m.runCycle(ctx)
			m.rescheduleScans()
		}
	}
}
