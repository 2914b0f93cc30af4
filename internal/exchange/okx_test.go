package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"perpscan/pkg/model"
)

func TestCandlesReversedToAscending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/market/candles", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("bar"); got != "1H" {
			t.Errorf("Expected bar 1H, got %q", got)
		}
		if got := r.URL.Query().Get("instId"); got != "BTC-USDT-SWAP" {
			t.Errorf("Expected instId BTC-USDT-SWAP, got %q", got)
		}
		// OKX answers newest first.
		w.Write([]byte(`{"code":"0","msg":"","data":[
			["1700003600000","101","102","100.5","101.5","55","0","0","0"],
			["1700000000000","100","101","99.5","100.5","50","0","0","0"]
		]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewOKX(srv.URL, 600)
	candles, err := c.Candles(context.Background(), "BTC-USDT-SWAP", model.Timeframe1h, 2)
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(candles))
	}
	if candles[0].Timestamp != 1700000000000 || candles[1].Timestamp != 1700003600000 {
		t.Errorf("Expected ascending timestamps, got %d then %d",
			candles[0].Timestamp, candles[1].Timestamp)
	}
	first := candles[0]
	if first.Open != 100 || first.High != 101 || first.Low != 99.5 || first.Close != 100.5 || first.Volume != 50 {
		t.Errorf("Unexpected first candle: %+v", first)
	}
}

func TestCandlesMalformedField(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/market/candles", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[
			["1700000000000","100","101","not-a-number","100.5","50"]
		]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewOKX(srv.URL, 600)
	_, err := c.Candles(context.Background(), "BTC-USDT-SWAP", model.Timeframe5m, 1)
	if err == nil {
		t.Fatal("Expected error for malformed numeric field")
	}
}

func TestExchangeErrorCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/market/candles", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewOKX(srv.URL, 600)
	_, err := c.Candles(context.Background(), "NOPE-USDT-SWAP", model.Timeframe5m, 10)
	if err == nil {
		t.Fatal("Expected error for non-zero exchange code")
	}
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("Expected SourceError, got %T", err)
	}
	if srcErr.Retryable {
		t.Error("Unknown instrument should not be retryable")
	}
}

func TestRateLimitedRetryable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/public/time", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewOKX(srv.URL, 600)
	_, err := c.Now(context.Background())
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("Expected SourceError, got %v", err)
	}
	if !srcErr.Retryable {
		t.Error("429 should be retryable")
	}
}

func TestNow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/public/time", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[{"ts":"1700000000123"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewOKX(srv.URL, 600)
	now, err := c.Now(context.Background())
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	if now != 1700000000123 {
		t.Errorf("Expected 1700000000123, got %d", now)
	}
}

func TestOKXBarMapping(t *testing.T) {
	tests := []struct {
		tf   model.Timeframe
		want string
	}{
		{model.Timeframe1h, "1H"},
		{model.Timeframe15m, "15m"},
		{model.Timeframe5m, "5m"},
	}
	for _, tt := range tests {
		if got := okxBar(tt.tf); got != tt.want {
			t.Errorf("%s: expected bar %q, got %q", tt.tf, tt.want, got)
		}
	}
}
