package model

import "time"

// Timeframe identifies one of the three screening horizons.
type Timeframe string

const (
	Timeframe1h  Timeframe = "1h"
	Timeframe15m Timeframe = "15m"
	Timeframe5m  Timeframe = "5m"
)

// Timeframes lists all screened horizons, slowest first. Every symbol is
// evaluated on each of them and the overall verdict is the conjunction.
var Timeframes = []Timeframe{Timeframe1h, Timeframe15m, Timeframe5m}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe1h, Timeframe15m, Timeframe5m:
		return true
	}
	return false
}

// MaxDelay returns the staleness bound for the timeframe: the most recent
// bar may be at most one full period old relative to exchange time.
func (tf Timeframe) MaxDelay() time.Duration {
	switch tf {
	case Timeframe1h:
		return time.Hour
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	}
	return 0
}

// Candle represents a single OHLCV bar. Timestamp is the exchange epoch in
// milliseconds (bar open time).
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// EnrichedBar is a Candle plus the derived indicator fields. A bar only
// appears in enriched output once every derived field is defined, i.e. all
// indicator warm-up windows have been absorbed.
type EnrichedBar struct {
	Candle

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	RSI7       float64 `json:"rsi_7"`
	RSI7Prev   float64 `json:"rsi_7_prev"`
	MA5        float64 `json:"ma5"`
	MA10       float64 `json:"ma10"`
	MA20       float64 `json:"ma20"`
	VolumeMA5  float64 `json:"volume_ma5"`
	VolumeMA10 float64 `json:"volume_ma10"`

	// VolumeRatio is the bar's volume divided by the mean volume of the
	// five preceding bars (current bar excluded from the window).
	VolumeRatio float64 `json:"volume_ratio"`
}

// TimeframeResult is the outcome of evaluating one timeframe for one symbol.
// Satisfied means the timeframe's rule held on fresh, valid data. DataError
// is set when the timeframe could not be evaluated (insufficient, invalid or
// stale data); such a timeframe counts as failed, not skipped.
type TimeframeResult struct {
	Satisfied bool   `json:"satisfied"`
	DataError string `json:"data_error,omitempty"`
}

// Verdict is the screening outcome for a single symbol.
type Verdict struct {
	Symbol     string                        `json:"symbol"`
	Timeframes map[Timeframe]TimeframeResult `json:"timeframes"`
	Passed     bool                          `json:"passed"`
}

// Matched reports whether the given timeframe's rule was satisfied.
func (v *Verdict) Matched(tf Timeframe) bool {
	return v.Timeframes[tf].Satisfied
}

// ScreenResult is the aggregate output of a screening run.
type ScreenResult struct {
	TotalScreened int           `json:"total_screened"`
	MatchedCount  int           `json:"matched_count"`
	Verdicts      []Verdict     `json:"verdicts"`
	ScreenTime    time.Duration `json:"screen_time"`
}

// Matches returns the symbols whose overall verdict passed, in run order.
func (r *ScreenResult) Matches() []string {
	var out []string
	for _, v := range r.Verdicts {
		if v.Passed {
			out = append(out, v.Symbol)
		}
	}
	return out
}
