// Package series builds validated candle series for a single symbol and
// timeframe. Construction enforces the raw-data contract (enough history,
// finite fields, strictly increasing timestamps) before any indicator work.
package series

import (
	"errors"
	"fmt"
	"math"

	"perpscan/pkg/model"
)

// WarmupBars is the extra history fetched beyond the visible window so that
// indicator warm-up periods are computed from real bars rather than padding.
const WarmupBars = 50

// DefaultLimit is the default visible window length.
const DefaultLimit = 100

// Expected data failures. Each downgrades a single timeframe's verdict and
// never aborts the whole screening run.
var (
	ErrInsufficientData = errors.New("insufficient candle data")
	ErrInvalidField     = errors.New("invalid candle field")
	ErrStaleData        = errors.New("stale candle data")
)

// ErrUnordered indicates the data source violated its contract by returning
// bars with non-increasing timestamps. Unlike the errors above this is a
// programming/contract failure, not an expected market-data condition.
var ErrUnordered = errors.New("candles out of timestamp order")

// Series is an ordered, validated OHLCV series for one symbol/timeframe.
type Series struct {
	Symbol    string
	Timeframe model.Timeframe
	Bars      []model.Candle

	limit int
}

// New validates raw candles and constructs a Series. The source must supply
// at least limit+WarmupBars bars; any non-finite OHLCV field rejects the
// whole series, since one corrupt bar is evidence the fetch was malformed.
func New(symbol string, tf model.Timeframe, bars []model.Candle, limit int) (*Series, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if need := limit + WarmupBars; len(bars) < need {
		return nil, fmt.Errorf("%w: %s %s: got %d bars, need %d",
			ErrInsufficientData, symbol, tf, len(bars), need)
	}

	for i, b := range bars {
		if err := validateCandle(b); err != nil {
			return nil, fmt.Errorf("%w: %s %s: bar %d: %v", ErrInvalidField, symbol, tf, i, err)
		}
		if i > 0 && b.Timestamp <= bars[i-1].Timestamp {
			return nil, fmt.Errorf("%w: %s %s: bar %d (%d) not after bar %d (%d)",
				ErrUnordered, symbol, tf, i, b.Timestamp, i-1, bars[i-1].Timestamp)
		}
	}

	return &Series{Symbol: symbol, Timeframe: tf, Bars: bars, limit: limit}, nil
}

func validateCandle(c model.Candle) error {
	fields := []struct {
		name string
		v    float64
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
		{"volume", c.Volume},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("non-finite %s value %v", f.name, f.v)
		}
	}
	return nil
}

// Limit returns the visible window length requested at construction.
func (s *Series) Limit() int {
	return s.limit
}

// Last returns the most recent bar.
func (s *Series) Last() model.Candle {
	return s.Bars[len(s.Bars)-1]
}

// CheckFresh verifies the most recent bar against the timeframe's staleness
// bound. now is the exchange-reported time in epoch milliseconds. A bar
// exactly at the bound is still fresh; one millisecond over is stale.
func (s *Series) CheckFresh(now int64) error {
	bound := s.Timeframe.MaxDelay().Milliseconds()
	if age := now - s.Last().Timestamp; age > bound {
		return fmt.Errorf("%w: %s %s: last bar %dms old, bound %dms",
			ErrStaleData, s.Symbol, s.Timeframe, age, bound)
	}
	return nil
}
