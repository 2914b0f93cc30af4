// Package screener runs the multi-timeframe evaluation pipeline. For each
// symbol and timeframe it fetches candles, validates and freshness-checks
// the series, enriches it with indicators and applies the timeframe's rule.
// The three timeframe verdicts are combined by logical AND.
package screener

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"perpscan/internal/exchange"
	"perpscan/internal/indicator"
	"perpscan/internal/rule"
	"perpscan/internal/series"
	"perpscan/pkg/model"
)

// ProgressCallback is called after each symbol finishes.
type ProgressCallback func(screened, total int)

// Screener evaluates symbols against the multi-timeframe rule set.
type Screener struct {
	source  exchange.Source
	limit   int
	workers int
	timeout time.Duration

	progressFunc ProgressCallback
}

// New creates a Screener. limit is the visible window length per timeframe
// (series.DefaultLimit when <= 0); workers bounds concurrent symbol
// evaluations in ScreenAll.
func New(source exchange.Source, limit, workers int, timeout time.Duration) *Screener {
	if limit <= 0 {
		limit = series.DefaultLimit
	}
	if workers < 1 {
		workers = 1
	}
	return &Screener{
		source:  source,
		limit:   limit,
		workers: workers,
		timeout: timeout,
	}
}

// SetProgressCallback sets the progress callback function.
func (s *Screener) SetProgressCallback(fn ProgressCallback) {
	s.progressFunc = fn
}

// Screen evaluates a single symbol. Every timeframe is evaluated fully and
// independently so the verdict reports all three outcomes even once one has
// failed; a timeframe whose data is unavailable or invalid counts as
// failed, with the cause recorded on the verdict.
func (s *Screener) Screen(ctx context.Context, symbol string) model.Verdict {
	verdict := model.Verdict{
		Symbol:     symbol,
		Timeframes: make(map[model.Timeframe]model.TimeframeResult, len(model.Timeframes)),
		Passed:     true,
	}

	for _, tf := range model.Timeframes {
		res := s.evaluateTimeframe(ctx, symbol, tf)
		verdict.Timeframes[tf] = res
		if !res.Satisfied {
			verdict.Passed = false
		}
	}
	return verdict
}

// evaluateTimeframe runs the per-timeframe pipeline: fetch, validate,
// freshness-check, enrich, apply rule. Any data failure yields an
// unsatisfied result carrying the error; an out-of-order series is a source
// contract violation and is logged as such, but still fails the timeframe.
func (s *Screener) evaluateTimeframe(ctx context.Context, symbol string, tf model.Timeframe) model.TimeframeResult {
	candles, err := s.source.Candles(ctx, symbol, tf, s.limit+series.WarmupBars)
	if err != nil {
		return dataFailure(symbol, tf, err)
	}

	ser, err := series.New(symbol, tf, candles, s.limit)
	if err != nil {
		if errors.Is(err, series.ErrUnordered) {
			log.Printf("[ERROR] source contract violation: %v", err)
		}
		return dataFailure(symbol, tf, err)
	}

	// Staleness gate runs before enrichment so rejected data costs no
	// indicator computation.
	now, err := s.source.Now(ctx)
	if err != nil {
		return dataFailure(symbol, tf, err)
	}
	if err := ser.CheckFresh(now); err != nil {
		return dataFailure(symbol, tf, err)
	}

	bars, err := indicator.Enrich(ser)
	if err != nil {
		return dataFailure(symbol, tf, err)
	}

	check := rule.ForTimeframe(tf)
	latest := bars[len(bars)-1]
	return model.TimeframeResult{Satisfied: check(latest)}
}

func dataFailure(symbol string, tf model.Timeframe, err error) model.TimeframeResult {
	log.Printf("[WARN] %s %s: %v", symbol, tf, err)
	return model.TimeframeResult{Satisfied: false, DataError: err.Error()}
}

// ScreenAll evaluates symbols concurrently on a bounded worker pool.
// Verdicts are returned in input order regardless of completion order. On
// cancellation no new evaluations start; verdicts already produced are kept
// and returned as a valid partial result.
func (s *Screener) ScreenAll(ctx context.Context, symbols []string) (*model.ScreenResult, error) {
	startTime := time.Now()

	if len(symbols) == 0 {
		return &model.ScreenResult{
			Verdicts:   []model.Verdict{},
			ScreenTime: time.Since(startTime),
		}, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type job struct {
		index  int
		symbol string
	}
	jobChan := make(chan job, len(symbols))
	for i, sym := range symbols {
		jobChan <- job{index: i, symbol: sym}
	}
	close(jobChan)

	done := make([]bool, len(symbols))
	verdicts := make([]model.Verdict, len(symbols))
	var screenedCount int64

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				verdicts[j.index] = s.Screen(ctx, j.symbol)
				done[j.index] = true

				count := atomic.AddInt64(&screenedCount, 1)
				if s.progressFunc != nil {
					s.progressFunc(int(count), len(symbols))
				}
			}
		}()
	}
	wg.Wait()

	result := &model.ScreenResult{
		TotalScreened: len(symbols),
		ScreenTime:    time.Since(startTime),
	}
	for i := range verdicts {
		if !done[i] {
			continue
		}
		result.Verdicts = append(result.Verdicts, verdicts[i])
		if verdicts[i].Passed {
			result.MatchedCount++
		}
	}
	return result, ctx.Err()
}
