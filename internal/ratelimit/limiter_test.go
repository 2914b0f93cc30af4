package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewLimiter(t *testing.T) {
	limiter := NewLimiter("okx", 60)

	if limiter.Name() != "okx" {
		t.Errorf("Expected name 'okx', got '%s'", limiter.Name())
	}

	// Burst allows the first few requests immediately.
	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Errorf("Request %d should have been allowed", i)
		}
	}
}

func TestLimiterWait(t *testing.T) {
	limiter := NewLimiter("okx", 120)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait took too long")
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	limiter := NewLimiter("okx", 1) // slow enough to block after burst

	for limiter.Allow() {
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Error("Expected error on cancelled context")
	}
}

func TestLimiterBackoff(t *testing.T) {
	limiter := NewLimiter("okx", 60)

	initial := limiter.GetBackoff()
	limiter.SignalRateLimited()
	if limiter.GetBackoff() != 2*initial {
		t.Errorf("Expected backoff to double, got %v", limiter.GetBackoff())
	}
	limiter.SignalRateLimited()
	if limiter.GetBackoff() != 4*initial {
		t.Errorf("Expected backoff to double again, got %v", limiter.GetBackoff())
	}

	limiter.ResetBackoff()
	if limiter.GetBackoff() != initial {
		t.Errorf("Expected backoff reset to %v, got %v", initial, limiter.GetBackoff())
	}
}

func TestLimiterBackoffCapped(t *testing.T) {
	limiter := NewLimiter("okx", 60)

	for i := 0; i < 20; i++ {
		limiter.SignalRateLimited()
	}
	if limiter.GetBackoff() > 2*time.Minute {
		t.Errorf("Expected backoff capped at 2m, got %v", limiter.GetBackoff())
	}
}
