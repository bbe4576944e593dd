package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
)

// BotConfig represents the configuration for the chat bot front end.
type BotConfig struct {
	// Token is the telegram bot token.
	Token string
	// Handle executes the provided command text for the provided sender,
	// returning a reply.
	Handle func(ctx context.Context, senderID string, text string) string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *BotConfig) Validate() error {
	var errs error

	if cfg.Token == "" {
		errs = errors.Join(errs, fmt.Errorf("bot token cannot be an empty string"))
	}
	if cfg.Handle == nil {
		errs = errors.Join(errs, fmt.Errorf("handle function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Bot relays chat messages to the command dispatcher and replies with its
// confirmations.
type Bot struct {
	cfg    *BotConfig
	client *tele.Bot
}

// NewBot initializes a new chat bot front end.
func NewBot(cfg *BotConfig) (*Bot, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	client, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: time.Second * 10},
	})
	if err != nil {
		return nil, fmt.Errorf("creating bot client: %w", err)
	}

	b := &Bot{
		cfg:    cfg,
		client: client,
	}

	return b, nil
}

// Run manages the lifecycle processes of the bot.
func (b *Bot) Run(ctx context.Context) {
	b.client.Handle(tele.OnText, func(c tele.Context) error {
		senderID := ""
		if c.Sender() != nil {
			senderID = strconv.FormatInt(c.Sender().ID, 10)
		}

		reply := b.cfg.Handle(ctx, senderID, c.Text())
		if reply == "" {
			return nil
		}

		return c.Send(reply)
	})

	go func() {
		<-ctx.Done()
		b.client.Stop()
	}()

	b.cfg.Logger.Info().Msg("bot front end started")
	b.client.Start()
}
