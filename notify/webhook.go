package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"tradewatch/shared"
)

const (
	// maxMessageLength caps outbound message length, the channel rejects
	// payloads near its 2000 character limit.
	maxMessageLength = 1900
)

var (
	everyoneMention = regexp.MustCompile(`(?i)@everyone`)
	hereMention     = regexp.MustCompile(`(?i)@here`)
)

// WebhookConfig represents the configuration for the webhook notifier.
type WebhookConfig struct {
	// URL is the webhook url. An empty url disables the notifier.
	URL string
	// Logger is the notifier logger.
	Logger *zerolog.Logger
}

// WebhookNotifier posts messages to a configured webhook.
type WebhookNotifier struct {
	cfg   *WebhookConfig
	httpc http.Client
}

// Ensure the webhook notifier implements the Notifier interface.
var _ shared.Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier instantiates a new webhook notifier.
func NewWebhookNotifier(cfg *WebhookConfig) *WebhookNotifier {
	if cfg.URL == "" {
		cfg.Logger.Warn().Msg("webhook url is not set, notifications will be skipped")
	}

	return &WebhookNotifier{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 10},
	}
}

// Sanitize neutralizes mass-mention tokens and trims the provided message.
func Sanitize(message string) string {
	message = everyoneMention.ReplaceAllString(message, "[@everyone]")
	message = hereMention.ReplaceAllString(message, "[@here]")
	message = strings.TrimSpace(message)

	if len(message) > maxMessageLength {
		// Truncate on a rune boundary so the payload stays valid utf-8.
		cut := maxMessageLength
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut]
	}

	return message
}

// Notify posts the provided message to the configured webhook, best-effort.
// It is a no-op when no webhook url is configured, failures are logged and
// never propagated.
func (n *WebhookNotifier) Notify(ctx context.Context, message string) {
	if n.cfg.URL == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{"content": Sanitize(message)})
	if err != nil {
		n.cfg.Logger.Error().Msgf("marshalling notification payload: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		n.cfg.Logger.Error().Msgf("creating notification request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpc.Do(req)
	if err != nil {
		n.cfg.Logger.Error().Msgf("sending notification: %v", err)
		return
	}

	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		n.cfg.Logger.Error().Msgf("notification rejected: %d", resp.StatusCode)
	}
}
