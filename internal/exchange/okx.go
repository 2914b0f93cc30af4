package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"perpscan/internal/ratelimit"
	"perpscan/pkg/model"
)

// DefaultBaseURL is the OKX REST v5 endpoint.
const DefaultBaseURL = "https://www.okx.com"

// okxMaxCandles is the per-request cap on the candles endpoint.
const okxMaxCandles = 300

// OKX implements Source against the OKX public REST API. Market-data
// endpoints need no authentication.
type OKX struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
}

// NewOKX creates a client for the given base URL, rate limited to perMinute
// requests.
func NewOKX(baseURL string, perMinute int) *OKX {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OKX{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: ratelimit.NewLimiter("okx", perMinute),
	}
}

// okxResponse is the envelope every OKX endpoint answers with. A non-zero
// code means the request failed even when HTTP status is 200.
type okxResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Ticker is one row of the SWAP tickers endpoint. Numeric fields arrive as
// strings and stay that way until the universe layer parses them.
type Ticker struct {
	InstID      string `json:"instId"`
	Last        string `json:"last"`
	VolCcy24h   string `json:"volCcy24h"`
	VolQuote24h string `json:"volCcyQuote24h"`
}

// Instrument is one row of the SWAP instruments endpoint.
type Instrument struct {
	InstID    string `json:"instId"`
	SettleCcy string `json:"settleCcy"`
	State     string `json:"state"`
}

// okxBar returns the exchange's bar identifier for a timeframe. Minute bars
// are lowercase, hour bars uppercase.
func okxBar(tf model.Timeframe) string {
	if tf == model.Timeframe1h {
		return "1H"
	}
	return string(tf)
}

// Candles fetches OHLCV bars. OKX returns them newest first; they are
// reversed to ascending order here. The in-progress bar is included.
func (c *OKX) Candles(ctx context.Context, instID string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if limit > okxMaxCandles {
		limit = okxMaxCandles
	}
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("bar", okxBar(tf))
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]string
	if err := c.get(ctx, "/api/v5/market/candles", q, &rows); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		candle, err := parseCandleRow(rows[i])
		if err != nil {
			return nil, &SourceError{Op: "candles " + instID, Err: err}
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseCandleRow converts one raw OKX kline row
// [ts, open, high, low, close, vol, ...] into a typed candle.
func parseCandleRow(row []string) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
	}
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parsing timestamp %q: %w", row[0], err)
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("parsing field %d %q: %w", i+1, row[i+1], err)
		}
		vals[i] = v
	}
	return model.Candle{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

// Now returns the exchange server time in epoch milliseconds.
func (c *OKX) Now(ctx context.Context) (int64, error) {
	var rows []struct {
		TS string `json:"ts"`
	}
	if err := c.get(ctx, "/api/v5/public/time", nil, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, &SourceError{Op: "server time", Err: fmt.Errorf("empty response")}
	}
	ts, err := strconv.ParseInt(rows[0].TS, 10, 64)
	if err != nil {
		return 0, &SourceError{Op: "server time", Err: err}
	}
	return ts, nil
}

// Tickers returns 24h statistics for all perpetual swaps.
func (c *OKX) Tickers(ctx context.Context) ([]Ticker, error) {
	q := url.Values{}
	q.Set("instType", "SWAP")
	var tickers []Ticker
	if err := c.get(ctx, "/api/v5/market/tickers", q, &tickers); err != nil {
		return nil, err
	}
	return tickers, nil
}

// Instruments returns all listed perpetual swap instruments.
func (c *OKX) Instruments(ctx context.Context) ([]Instrument, error) {
	q := url.Values{}
	q.Set("instType", "SWAP")
	var instruments []Instrument
	if err := c.get(ctx, "/api/v5/public/instruments", q, &instruments); err != nil {
		return nil, err
	}
	return instruments, nil
}

func (c *OKX) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &SourceError{Op: path, Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.SignalRateLimited()
		return &SourceError{Op: path, Err: fmt.Errorf("rate limited"), Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return &SourceError{Op: path, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	c.limiter.ResetBackoff()

	var env okxResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if env.Code != "0" {
		return &SourceError{Op: path, Err: fmt.Errorf("exchange error %s: %s", env.Code, env.Msg)}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}
