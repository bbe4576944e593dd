package service

import (
	"context"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestWatcherConfigValidate(t *testing.T) {
	cancel := context.CancelFunc(func() {})

	tests := []struct {
		name        string
		cfg         WatcherConfig
		wantErr     bool
		errContains []string
	}{
		{
			name: "valid config returns nil",
			cfg: WatcherConfig{
				StoreEndpoint: "http://localhost:4001",
				Cancel:        cancel,
			},
			wantErr: false,
		},
		{
			name: "optional integrations may be empty",
			cfg: WatcherConfig{
				StoreEndpoint:      "http://localhost:4001",
				AlphaVantageAPIKey: "",
				WebhookURL:         "",
				BotToken:           "",
				OwnerIDs:           nil,
				Cancel:             cancel,
			},
			wantErr: false,
		},
		{
			name:    "missing required inputs",
			cfg:     WatcherConfig{},
			wantErr: true,
			errContains: []string{
				"store endpoint cannot be an empty string",
				"context cancellation function cannot be nil",
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.cfg.Validate()
			if !test.wantErr {
				assert.NoError(t, err)
				return
			}

			assert.Error(t, err)
			for _, want := range test.errContains {
				assert.Equal(t, strings.Contains(err.Error(), want), true)
			}
		})
	}
}
