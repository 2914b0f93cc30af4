// Package universe selects the candidate instruments for a screening run:
// live USDT-settled perpetual swaps ranked by 24h quote volume.
package universe

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"perpscan/internal/exchange"
)

// Candidate is one instrument eligible for screening.
type Candidate struct {
	InstID      string  `json:"inst_id"`
	Last        float64 `json:"last"`
	QuoteVolume float64 `json:"quote_volume"`
}

// Lister provides the instrument and ticker listings the loader needs.
// *exchange.OKX satisfies it.
type Lister interface {
	Tickers(ctx context.Context) ([]exchange.Ticker, error)
	Instruments(ctx context.Context) ([]exchange.Instrument, error)
}

// Loader builds the screening universe from exchange listings.
type Loader struct {
	client Lister
}

// NewLoader creates a Loader backed by the given listing client.
func NewLoader(client Lister) *Loader {
	return &Loader{client: client}
}

// Load returns the top n live USDT perpetuals by 24h quote volume,
// descending. n <= 0 returns the full ranked list.
func (l *Loader) Load(ctx context.Context, n int) ([]Candidate, error) {
	instruments, err := l.client.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing instruments: %w", err)
	}
	tickers, err := l.client.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}
	return Rank(instruments, tickers, n), nil
}

// Rank filters to live USDT-settled instruments, joins their 24h tickers
// and returns the top n by quote volume descending. Instruments with no
// ticker or an unparseable volume are skipped.
func Rank(instruments []exchange.Instrument, tickers []exchange.Ticker, n int) []Candidate {
	eligible := make(map[string]bool, len(instruments))
	for _, inst := range instruments {
		if inst.SettleCcy == "USDT" && inst.State == "live" {
			eligible[inst.InstID] = true
		}
	}

	candidates := make([]Candidate, 0, len(eligible))
	for _, t := range tickers {
		if !eligible[t.InstID] {
			continue
		}
		vol, err := strconv.ParseFloat(t.VolQuote24h, 64)
		if err != nil {
			continue
		}
		last, _ := strconv.ParseFloat(t.Last, 64)
		candidates = append(candidates, Candidate{
			InstID:      t.InstID,
			Last:        last,
			QuoteVolume: vol,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].QuoteVolume != candidates[j].QuoteVolume {
			return candidates[i].QuoteVolume > candidates[j].QuoteVolume
		}
		return candidates[i].InstID < candidates[j].InstID
	})

	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// Symbols extracts the instrument IDs from candidates, preserving rank
// order.
func Symbols(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.InstID
	}
	return out
}
