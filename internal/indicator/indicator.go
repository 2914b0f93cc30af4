// Package indicator derives the technical indicators the screening rules
// read: MACD(12,26,9), Wilder RSI-7, simple moving averages of price and
// volume, and the volume ratio against the preceding five bars.
//
// All derivations run over the full fetched series so warm-up periods are
// absorbed by real history. Undefined (warm-up) values are represented as
// NaN internally and dropped before enriched bars are returned; they are
// never surfaced as zero defaults.
package indicator

import (
	"errors"
	"fmt"
	"math"

	"perpscan/internal/series"
	"perpscan/pkg/model"
)

// Standard parameter set, matching MACD(12,26,9) and a 7-period RSI.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
	RSIPeriod  = 7

	VolumeRatioWindow = 5
)

// ErrInsufficientWarmup indicates too few bars survived indicator warm-up to
// fill the requested visible window.
var ErrInsufficientWarmup = errors.New("insufficient bars after indicator warmup")

// SMA returns the simple moving average of values over the trailing period.
// Positions with fewer than period values of history are NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA returns the exponential moving average with smoothing 2/(period+1).
// The first defined value, at index period-1, is seeded with the simple
// average of the first period inputs; earlier positions are NaN. Inputs may
// carry a leading NaN run (e.g. the MACD line), which shifts the seed
// accordingly.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	start := firstDefined(values)
	if start < 0 || len(values)-start < period {
		return out
	}

	var sum float64
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	seed := start + period - 1
	out[seed] = sum / float64(period)

	k := 2.0 / (float64(period) + 1.0)
	for i := seed + 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI returns Wilder's relative strength index. The first defined value is
// at index period; earlier positions are NaN. Values always lie in [0,100];
// a window with no losses yields exactly 100.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		var gain, loss float64
		change := closes[i] - closes[i-1]
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD returns the MACD line, signal line and histogram for the standard
// (12,26,9) parameters. The line is defined once the slow EMA is, the
// signal and histogram once nine MACD values have accumulated.
func MACD(closes []float64) (line, signal, hist []float64) {
	fast := EMA(closes, MACDFast)
	slow := EMA(closes, MACDSlow)

	line = nanSlice(len(closes))
	for i := range closes {
		line[i] = fast[i] - slow[i] // NaN while either side is warming up
	}

	signal = EMA(line, MACDSignal)

	hist = nanSlice(len(closes))
	for i := range closes {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}

// VolumeRatio divides each bar's volume by the mean volume of the five bars
// preceding it. The first five positions are NaN, as is any position whose
// preceding window has zero mean volume.
func VolumeRatio(volumes []float64) []float64 {
	out := nanSlice(len(volumes))
	for i := VolumeRatioWindow; i < len(volumes); i++ {
		var sum float64
		for j := i - VolumeRatioWindow; j < i; j++ {
			sum += volumes[j]
		}
		mean := sum / float64(VolumeRatioWindow)
		if mean == 0 {
			continue
		}
		out[i] = volumes[i] / mean
	}
	return out
}

// shift returns values moved one position later; index 0 becomes NaN.
func shift(values []float64) []float64 {
	out := nanSlice(len(values))
	copy(out[1:], values[:len(values)-1])
	return out
}

// Enrich derives every indicator over the full series, drops leading bars
// still inside any warm-up window and returns exactly the trailing
// s.Limit() fully-defined bars. If fewer survive warm-up it fails with
// ErrInsufficientWarmup.
func Enrich(s *series.Series) ([]model.EnrichedBar, error) {
	n := len(s.Bars)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range s.Bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	macd, macdSignal, macdHist := MACD(closes)
	rsi := RSI(closes, RSIPeriod)
	rsiPrev := shift(rsi)
	ma5 := SMA(closes, 5)
	ma10 := SMA(closes, 10)
	ma20 := SMA(closes, 20)
	volMA5 := SMA(volumes, 5)
	volMA10 := SMA(volumes, 10)
	volRatio := VolumeRatio(volumes)

	bars := make([]model.EnrichedBar, 0, n)
	for i := 0; i < n; i++ {
		b := model.EnrichedBar{
			Candle:      s.Bars[i],
			MACD:        macd[i],
			MACDSignal:  macdSignal[i],
			MACDHist:    macdHist[i],
			RSI7:        rsi[i],
			RSI7Prev:    rsiPrev[i],
			MA5:         ma5[i],
			MA10:        ma10[i],
			MA20:        ma20[i],
			VolumeMA5:   volMA5[i],
			VolumeMA10:  volMA10[i],
			VolumeRatio: volRatio[i],
		}
		if !defined(b) {
			// Warm-up bars form a leading run; skip rather than break so a
			// NaN volume-ratio gap mid-series is also excluded.
			continue
		}
		bars = append(bars, b)
	}

	limit := s.Limit()
	if len(bars) < limit {
		return nil, fmt.Errorf("%w: %s %s: %d valid bars, need %d",
			ErrInsufficientWarmup, s.Symbol, s.Timeframe, len(bars), limit)
	}
	return bars[len(bars)-limit:], nil
}

func defined(b model.EnrichedBar) bool {
	for _, v := range []float64{
		b.MACD, b.MACDSignal, b.MACDHist,
		b.RSI7, b.RSI7Prev,
		b.MA5, b.MA10, b.MA20,
		b.VolumeMA5, b.VolumeMA10, b.VolumeRatio,
	} {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func firstDefined(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}
