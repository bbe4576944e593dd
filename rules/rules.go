package rules

import (
	"fmt"
	"math"
	"strconv"
)

const (
	// DefaultRSIPeriod is the default period for the relative strength index.
	DefaultRSIPeriod = 14
	// OversoldThreshold is the RSI value below which an oversold signal fires.
	OversoldThreshold = float64(30)
	// DefaultBreakoutThreshold is the default breakout threshold, in percent
	// over the recent high.
	DefaultBreakoutThreshold = float64(2)
	// minBreakoutSamples is the minimum series length for breakout detection.
	minBreakoutSamples = 3
)

// latestRSI computes the latest relative strength index value for the provided
// price series using Wilder smoothing. The series must have at least
// period + 1 entries.
func latestRSI(prices []float64, period int) float64 {
	// Gains and losses accumulate via math.Max so a NaN price propagates
	// into the averages instead of being silently dropped.
	var avgGain, avgLoss float64
	for idx := 1; idx <= period; idx++ {
		change := prices[idx] - prices[idx-1]
		avgGain += math.Max(change, 0)
		avgLoss += math.Max(-change, 0)
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)

	for idx := period + 1; idx < len(prices); idx++ {
		change := prices[idx] - prices[idx-1]
		avgGain = (avgGain*float64(period-1) + math.Max(change, 0)) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + math.Max(-change, 0)) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// EvaluateOversold computes the RSI over the provided price series and
// generates an oversold signal when the latest value is below the oversold
// threshold. It abstains (empty signal) when the series is shorter than
// period + 1 or the computed value is not finite.
func EvaluateOversold(symbol string, prices []float64, period int) string {
	if period <= 0 {
		period = DefaultRSIPeriod
	}

	if len(prices) < period+1 {
		// Not enough data to compute the RSI.
		return ""
	}

	rsi := latestRSI(prices, period)
	if math.IsNaN(rsi) || math.IsInf(rsi, 0) {
		return ""
	}

	if rsi < OversoldThreshold {
		return fmt.Sprintf("%s RSI = %.2f, oversold - consider watching for a bounce.", symbol, rsi)
	}

	return ""
}

// DetectBreakout generates a breakout signal when the latest price exceeds the
// recent high by the provided threshold percent. The recent high excludes the
// latest bar to avoid self-comparison and spans the full remaining history,
// or the last lookback bars when lookback is positive. It abstains (empty
// signal) when the series has fewer than three entries.
func DetectBreakout(symbol string, prices []float64, thresholdPercent float64, lookback int) string {
	if len(prices) < minBreakoutSamples {
		return ""
	}

	latest := prices[len(prices)-1]

	end := len(prices) - 1
	start := 0
	if lookback > 0 && end-lookback > 0 {
		start = end - lookback
	}

	recentHigh := prices[start]
	for idx := start + 1; idx < end; idx++ {
		if prices[idx] > recentHigh {
			recentHigh = prices[idx]
		}
	}

	trigger := recentHigh * (1 + thresholdPercent/100)
	if math.IsNaN(trigger) || math.IsInf(trigger, 0) {
		return ""
	}

	if latest > trigger {
		pct := (latest/recentHigh - 1) * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			return ""
		}

		return fmt.Sprintf("%s breakout! Price %s > prior high %s by %.2f%% (threshold %g%%).",
			symbol, FormatPrice(latest), FormatPrice(recentHigh), pct, thresholdPercent)
	}

	return ""
}

// FormatPrice formats the provided price with precision scaled to its
// magnitude, so low priced assets do not render as 0.00.
func FormatPrice(price float64) string {
	switch {
	case math.IsNaN(price) || math.IsInf(price, 0):
		return fmt.Sprintf("%v", price)
	case price >= 1:
		return strconv.FormatFloat(price, 'f', 2, 64)
	case price >= 0.1:
		return strconv.FormatFloat(price, 'f', 3, 64)
	default:
		return strconv.FormatFloat(price, 'f', 6, 64)
	}
}
