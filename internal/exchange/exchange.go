// Package exchange provides market data access for the screener. The
// pipeline consumes the Source interface so tests can substitute an
// in-memory implementation without network access.
package exchange

import (
	"context"

	"perpscan/pkg/model"
)

// Source supplies raw market data. Now returns the exchange-reported time
// in epoch milliseconds; staleness checks are made against it rather than
// local clock time.
type Source interface {
	// Candles returns up to limit OHLCV bars for the instrument and
	// timeframe, in ascending timestamp order.
	Candles(ctx context.Context, instID string, tf model.Timeframe, limit int) ([]model.Candle, error)

	// Now returns the current exchange time in epoch milliseconds.
	Now(ctx context.Context) (int64, error)
}

// SourceError wraps a market-data failure with the operation that produced
// it. Retryable marks transient conditions such as rate limiting.
type SourceError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *SourceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
