// Package rule holds the per-timeframe screening predicates. Each rule is a
// pure function of the latest enriched bar (the 5m rule also reads the
// previous bar's RSI, which the bar already carries).
package rule

import "perpscan/pkg/model"

// MaxMA20DeviationPct caps how far above MA20 the 1h close may stretch.
const MaxMA20DeviationPct = 2.0

// MinVolumeRatio is the 15m volume-spike threshold.
const MinVolumeRatio = 1.5

// Rule evaluates a timeframe predicate against the latest enriched bar.
type Rule func(latest model.EnrichedBar) bool

// ForTimeframe returns the rule for the given timeframe, or nil if the
// timeframe is not screened.
func ForTimeframe(tf model.Timeframe) Rule {
	switch tf {
	case model.Timeframe1h:
		return OneHour
	case model.Timeframe15m:
		return FifteenMin
	case model.Timeframe5m:
		return FiveMin
	}
	return nil
}

// OneHour requires an established uptrend that has not stretched too far:
// close above MA20, MA10 above MA20, positive MACD histogram, close within
// 2% of MA20, and short-term volume above medium-term volume.
func OneHour(b model.EnrichedBar) bool {
	// A zero MA20 for a traded instrument is anomalous data; fail the rule
	// rather than divide by zero.
	if b.MA20 == 0 {
		return false
	}
	deviation := (b.Close - b.MA20) / b.MA20 * 100

	return b.Close > b.MA20 &&
		b.MA10 > b.MA20 &&
		b.MACDHist > 0 &&
		deviation < MaxMA20DeviationPct &&
		b.VolumeMA5 > b.VolumeMA10
}

// FifteenMin requires short-term momentum with volume confirmation: MA5
// above MA10, RSI-7 in the 40-70 band, a volume spike over the preceding
// five bars, and rising short-term volume.
func FifteenMin(b model.EnrichedBar) bool {
	return b.MA5 > b.MA10 &&
		b.RSI7 > 40 && b.RSI7 < 70 &&
		b.VolumeRatio > MinVolumeRatio &&
		b.VolumeMA5 > b.VolumeMA10
}

// FiveMin requires accelerating entry momentum: RSI-7 rising bar over bar
// and a positive MACD histogram.
func FiveMin(b model.EnrichedBar) bool {
	return b.RSI7 > b.RSI7Prev &&
		b.MACDHist > 0
}
