// Package ratelimit paces requests to the exchange REST API.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with backoff tracking for 429 responses.
type Limiter struct {
	limiter *rate.Limiter
	name    string

	mu      sync.Mutex
	backoff time.Duration
	maxWait time.Duration
}

const initialBackoff = 100 * time.Millisecond

// NewLimiter creates a limiter allowing perMinute requests per minute with a
// small burst allowance.
func NewLimiter(name string, perMinute int) *Limiter {
	rps := float64(perMinute) / 60.0
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
		backoff: initialBackoff,
		maxWait: 2 * time.Minute,
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SignalRateLimited should be called when the exchange answers 429. It
// doubles the backoff, capped at maxWait.
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.backoff *= 2
	if l.backoff > l.maxWait {
		l.backoff = l.maxWait
	}
}

// ResetBackoff restores the initial backoff after a successful request.
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = initialBackoff
}

// GetBackoff returns the current backoff duration.
func (l *Limiter) GetBackoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// Name returns the limiter name.
func (l *Limiter) Name() string {
	return l.name
}
