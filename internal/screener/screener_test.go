package screener

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"perpscan/internal/series"
	"perpscan/pkg/model"
)

const fakeNow int64 = 1_700_000_000_000

// fakeSource serves pre-built candle series from memory.
type fakeSource struct {
	now     int64
	candles map[string]map[model.Timeframe][]model.Candle
	errs    map[string]map[model.Timeframe]error
}

func (f *fakeSource) Candles(ctx context.Context, instID string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if err := f.errs[instID][tf]; err != nil {
		return nil, err
	}
	bars := f.candles[instID][tf]
	if bars == nil {
		return nil, fmt.Errorf("no data for %s %s", instID, tf)
	}
	return bars, nil
}

func (f *fakeSource) Now(ctx context.Context) (int64, error) {
	return f.now, nil
}

// trendCandles builds a convex uptrend with a handful of small dips early in
// the series (so RSI stays below 100 and keeps rising) and steadily growing
// volume. The final bar satisfies the 1h and 5m rules.
func trendCandles(tf model.Timeframe, n int, lastTS int64) []model.Candle {
	period := tf.MaxDelay().Milliseconds()
	bars := make([]model.Candle, n)
	for i := range bars {
		price := 100 + 0.03*float64(i) + 0.0004*float64(i)*float64(i)
		if i%10 == 5 && i < 100 {
			price -= 0.25
		}
		bars[i] = model.Candle{
			Timestamp: lastTS - int64(n-1-i)*period,
			Open:      price,
			High:      price + 0.1,
			Low:       price - 0.1,
			Close:     price,
			Volume:    1000 + 10*float64(i),
		}
	}
	return bars
}

// momentumCandles builds an alternating up/down drift that keeps RSI-7 in
// the mid band, with a volume spike on the final bar. The final bar
// satisfies the 15m rule.
func momentumCandles(tf model.Timeframe, n int, lastTS int64) []model.Candle {
	period := tf.MaxDelay().Milliseconds()
	bars := make([]model.Candle, n)
	for i := range bars {
		price := 100 + 0.05*float64(i)
		if i%2 == 0 {
			price -= 0.175
		} else {
			price += 0.175
		}
		vol := 1000.0
		if i == n-1 {
			vol = 2000
		}
		bars[i] = model.Candle{
			Timestamp: lastTS - int64(n-1-i)*period,
			Open:      price,
			High:      price + 0.3,
			Low:       price - 0.3,
			Close:     price,
			Volume:    vol,
		}
	}
	return bars
}

func passingSource() *fakeSource {
	return &fakeSource{
		now: fakeNow,
		candles: map[string]map[model.Timeframe][]model.Candle{
			"BTC-USDT-SWAP": {
				model.Timeframe1h:  trendCandles(model.Timeframe1h, 150, fakeNow),
				model.Timeframe15m: momentumCandles(model.Timeframe15m, 150, fakeNow),
				model.Timeframe5m:  trendCandles(model.Timeframe5m, 150, fakeNow),
			},
		},
	}
}

func TestScreenAllTimeframesPass(t *testing.T) {
	s := New(passingSource(), 100, 1, 0)

	verdict := s.Screen(context.Background(), "BTC-USDT-SWAP")
	for _, tf := range model.Timeframes {
		res := verdict.Timeframes[tf]
		if res.DataError != "" {
			t.Errorf("%s: unexpected data error %q", tf, res.DataError)
		}
		if !res.Satisfied {
			t.Errorf("%s: expected rule satisfied", tf)
		}
	}
	if !verdict.Passed {
		t.Error("Expected overall verdict to pass")
	}
}

func TestScreenFailedTimeframeDoesNotAbortOthers(t *testing.T) {
	src := passingSource()
	src.errs = map[string]map[model.Timeframe]error{
		"BTC-USDT-SWAP": {
			model.Timeframe15m: fmt.Errorf("fetch: %w", series.ErrInsufficientData),
		},
	}
	s := New(src, 100, 1, 0)

	verdict := s.Screen(context.Background(), "BTC-USDT-SWAP")

	if !verdict.Matched(model.Timeframe1h) {
		t.Error("Expected 1h to pass")
	}
	if !verdict.Matched(model.Timeframe5m) {
		t.Error("Expected 5m to pass")
	}

	res := verdict.Timeframes[model.Timeframe15m]
	if res.Satisfied {
		t.Error("Expected 15m to fail on missing data")
	}
	if res.DataError == "" {
		t.Error("Expected 15m to carry the data error")
	}
	if verdict.Passed {
		t.Error("Expected overall verdict to fail")
	}
}

func TestScreenStaleSeriesRejected(t *testing.T) {
	src := passingSource()
	// Age every series one millisecond past its timeframe bound.
	for tf, bars := range src.candles["BTC-USDT-SWAP"] {
		bound := tf.MaxDelay().Milliseconds()
		aged := make([]model.Candle, len(bars))
		for i, b := range bars {
			b.Timestamp -= bound + 1
			aged[i] = b
		}
		src.candles["BTC-USDT-SWAP"][tf] = aged
	}
	s := New(src, 100, 1, 0)

	verdict := s.Screen(context.Background(), "BTC-USDT-SWAP")
	if verdict.Passed {
		t.Error("Expected stale data to fail the verdict")
	}
	for _, tf := range model.Timeframes {
		res := verdict.Timeframes[tf]
		if res.Satisfied {
			t.Errorf("%s: expected failure on stale data", tf)
		}
		if !strings.Contains(res.DataError, "stale") {
			t.Errorf("%s: expected stale data error, got %q", tf, res.DataError)
		}
	}
}

func TestScreenIdempotent(t *testing.T) {
	s := New(passingSource(), 100, 1, 0)

	first := s.Screen(context.Background(), "BTC-USDT-SWAP")
	second := s.Screen(context.Background(), "BTC-USDT-SWAP")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical verdicts, got %+v then %+v", first, second)
	}
}

func TestScreenAllPreservesInputOrder(t *testing.T) {
	src := passingSource()
	symbols := []string{
		"BTC-USDT-SWAP", "ETH-USDT-SWAP", "SOL-USDT-SWAP",
		"XRP-USDT-SWAP", "DOGE-USDT-SWAP", "ADA-USDT-SWAP",
	}
	for _, sym := range symbols[1:] {
		src.candles[sym] = src.candles["BTC-USDT-SWAP"]
	}
	s := New(src, 100, 4, time.Minute)

	result, err := s.ScreenAll(context.Background(), symbols)
	if err != nil {
		t.Fatalf("ScreenAll: %v", err)
	}
	if len(result.Verdicts) != len(symbols) {
		t.Fatalf("Expected %d verdicts, got %d", len(symbols), len(result.Verdicts))
	}
	for i, v := range result.Verdicts {
		if v.Symbol != symbols[i] {
			t.Errorf("Position %d: expected %s, got %s", i, symbols[i], v.Symbol)
		}
	}
	if result.MatchedCount != len(symbols) {
		t.Errorf("Expected %d matches, got %d", len(symbols), result.MatchedCount)
	}
}

func TestScreenAllCancelledBeforeStart(t *testing.T) {
	s := New(passingSource(), 100, 2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.ScreenAll(ctx, []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(result.Verdicts) != 0 {
		t.Errorf("Expected no verdicts after pre-cancellation, got %d", len(result.Verdicts))
	}
}

func TestScreenAllEmptyInput(t *testing.T) {
	s := New(passingSource(), 100, 2, 0)

	result, err := s.ScreenAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("ScreenAll: %v", err)
	}
	if result.TotalScreened != 0 || len(result.Verdicts) != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}
