package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"

	"tradewatch/bot"
	"tradewatch/command"
	"tradewatch/fetch"
	"tradewatch/notify"
	"tradewatch/scan"
	"tradewatch/store"
)

// WatcherConfig represents the configuration struct for the watcher service.
type WatcherConfig struct {
	// StoreEndpoint represents the store connection endpoint.
	StoreEndpoint string
	// StoreUser is the store user.
	StoreUser string
	// StorePass is the store user pass.
	StorePass string
	// AlphaVantageAPIKey is the Alpha Vantage API key.
	AlphaVantageAPIKey string
	// WebhookURL is the notification webhook url.
	WebhookURL string
	// BotToken is the chat bot token.
	BotToken string
	// OwnerIDs is the allow-list of operator identities.
	OwnerIDs []string
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *WatcherConfig) Validate() error {
	var errs error

	if cfg.StoreEndpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("store endpoint cannot be an empty string"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// Watcher represents a market signal watching service.
type Watcher struct {
	cfg         *WatcherConfig
	store       *store.Store
	notifier    *notify.WebhookNotifier
	scanManager *scan.Manager
	dispatcher  *command.Dispatcher
	chatBot     *bot.Bot
	logger      *zerolog.Logger
	wg          sync.WaitGroup
}

// NewWatcher initializes a new watcher service.
func NewWatcher(ctx context.Context, cfg *WatcherConfig) (*Watcher, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "tradewatch").Logger()

	// Missing store credentials are the only process-fatal configuration,
	// everything else degrades.
	storeLogger := logger.With().Str("component", "store").Logger()
	st, err := store.NewStore(ctx, &store.StoreConfig{
		Endpoint: cfg.StoreEndpoint,
		User:     cfg.StoreUser,
		Pass:     cfg.StorePass,
		Logger:   &storeLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	notifierLogger := logger.With().Str("component", "notify").Logger()
	notifier := notify.NewWebhookNotifier(&notify.WebhookConfig{
		URL:    cfg.WebhookURL,
		Logger: &notifierLogger,
	})

	stockClient := fetch.NewAlphaVantageClient(&fetch.AlphaVantageConfig{APIKey: cfg.AlphaVantageAPIKey})
	cryptoClient := fetch.NewCoinGeckoClient(&fetch.CoinGeckoConfig{})

	scanLogger := logger.With().Str("component", "scanmanager").Logger()
	scanMgr, err := scan.NewManager(&scan.ManagerConfig{
		Settings:     st,
		Watchlist:    st,
		StockClient:  stockClient,
		CryptoClient: cryptoClient,
		OpenTrade:    st.OpenTrade,
		Notify:       notifier.Notify,
		Logger:       &scanLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating scan manager: %w", err)
	}

	dispatcherLogger := logger.With().Str("component", "command").Logger()
	dispatcher, err := command.NewDispatcher(&command.DispatcherConfig{
		Trades:      st,
		Watchlist:   st,
		Settings:    st,
		RequestScan: scanMgr.SendScanRequest,
		OwnerIDs:    cfg.OwnerIDs,
		Logger:      &dispatcherLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating command dispatcher: %w", err)
	}

	// The chat front end is optional, the scanner keeps running without it.
	var chatBot *bot.Bot
	if cfg.BotToken != "" {
		botLogger := logger.With().Str("component", "bot").Logger()
		chatBot, err = bot.NewBot(&bot.BotConfig{
			Token:  cfg.BotToken,
			Handle: dispatcher.Handle,
			Logger: &botLogger,
		})
		if err != nil {
			logger.Error().Msgf("creating bot front end: %v", err)
			chatBot = nil
		}
	}

	service := &Watcher{
		cfg:         cfg,
		store:       st,
		notifier:    notifier,
		scanManager: scanMgr,
		dispatcher:  dispatcher,
		chatBot:     chatBot,
		logger:      &logger,
	}

	return service, nil
}

// Run handles the lifecycle processes of the watcher service.
func (w *Watcher) Run(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		w.scanManager.Run(ctx)
		w.wg.Done()
	}()

	if w.chatBot != nil {
		w.wg.Add(1)
		go func() {
			w.chatBot.Run(ctx)
			w.wg.Done()
		}()
	}

	w.wg.Wait()
}
