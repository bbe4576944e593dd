package scan

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/rules"
)

const (
	// Recognized tunable setting keys, reloaded from the settings store at
	// every cycle boundary.
	SettingRSIPeriod           = "RSI_PERIOD"
	SettingBreakoutThreshold   = "BREAKOUT_THRESHOLD"
	SettingFetchDelayMS        = "FETCH_DELAY_MS"
	SettingScanIntervalMinutes = "SCAN_INTERVAL_MINUTES"

	// defaultFetchDelay is the default pause between per-instrument fetches.
	defaultFetchDelay = time.Millisecond * 2000
	// defaultScanInterval is the default scan cycle period.
	defaultScanInterval = time.Minute * 60
	// minScanInterval and maxScanInterval bound operator-set scan intervals.
	minScanInterval = 5
	maxScanInterval = 720
)

// Tunables represents the scan configuration snapshot for a cycle. It is
// rebuilt from defaults and stored settings at every cycle boundary and
// never mutated mid-cycle.
type Tunables struct {
	// RSIPeriod is the oversold rule period.
	RSIPeriod int
	// BreakoutThreshold is the breakout rule threshold, in percent.
	BreakoutThreshold float64
	// FetchDelay is the pause between per-instrument fetches.
	FetchDelay time.Duration
	// ScanInterval is the scan cycle period.
	ScanInterval time.Duration
}

// DefaultTunables generates the built-in scan configuration.
func DefaultTunables() Tunables {
	return Tunables{
		RSIPeriod:         rules.DefaultRSIPeriod,
		BreakoutThreshold: rules.DefaultBreakoutThreshold,
		FetchDelay:        defaultFetchDelay,
		ScanInterval:      defaultScanInterval,
	}
}

// Apply merges recognized setting keys into the tunables. Unrecognized keys
// are ignored, malformed or out-of-bounds values are logged and skipped.
func (t *Tunables) Apply(settings map[string]string, logger *zerolog.Logger) {
	if v, ok := settings[SettingRSIPeriod]; ok {
		period, err := strconv.Atoi(v)
		switch {
		case err != nil || period <= 0:
			logger.Error().Msgf("ignoring invalid %s: %q", SettingRSIPeriod, v)
		default:
			t.RSIPeriod = period
		}
	}

	if v, ok := settings[SettingBreakoutThreshold]; ok {
		threshold, err := strconv.ParseFloat(v, 64)
		switch {
		case err != nil || threshold <= 0:
			logger.Error().Msgf("ignoring invalid %s: %q", SettingBreakoutThreshold, v)
		default:
			t.BreakoutThreshold = threshold
		}
	}

	if v, ok := settings[SettingFetchDelayMS]; ok {
		delay, err := strconv.Atoi(v)
		switch {
		case err != nil || delay < 0:
			logger.Error().Msgf("ignoring invalid %s: %q", SettingFetchDelayMS, v)
		default:
			t.FetchDelay = time.Duration(delay) * time.Millisecond
		}
	}

	if v, ok := settings[SettingScanIntervalMinutes]; ok {
		interval, err := strconv.Atoi(v)
		switch {
		case err != nil || interval < minScanInterval || interval > maxScanInterval:
			logger.Error().Msgf("ignoring invalid %s: %q", SettingScanIntervalMinutes, v)
		default:
			t.ScanInterval = time.Duration(interval) * time.Minute
		}
	}
}
