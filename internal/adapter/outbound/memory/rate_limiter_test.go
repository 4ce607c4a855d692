// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/celestine-app/celestine/internal/domain/ratelimit"
)

func TestRateLimiter_WindowBudget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := NewRateLimiter()

	config := ratelimit.Config{
		Window:      time.Minute,
		MaxRequests: 10,
	}

	// All 10 requests within the budget are allowed, with remaining
	// counting down from 9 to 0.
	for i := 0; i < 10; i++ {
		result, err := limiter.Allow(ctx, "budget-key", config)
		if err != nil {
			t.Fatalf("Allow() error on request %d: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("Request %d should be allowed", i)
		}
		if want := 10 - i - 1; result.Remaining != want {
			t.Errorf("Request %d: Remaining = %d, want %d", i, result.Remaining, want)
		}
		if result.Limit != 10 {
			t.Errorf("Request %d: Limit = %d, want 10", i, result.Limit)
		}
	}

	// The 11th request is rejected with retry information.
	result, err := limiter.Allow(ctx, "budget-key", config)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if result.Allowed {
		t.Error("Request beyond the budget should be rejected")
	}
	if result.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", result.Remaining)
	}
	if result.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", result.RetryAfter)
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(WithClock(func() time.Time { return now }))

	config := ratelimit.Config{
		Window:      time.Minute,
		MaxRequests: 2,
	}

	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, "reset-key", config)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("Request %d should be allowed", i)
		}
	}

	result, err := limiter.Allow(ctx, "reset-key", config)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if result.Allowed {
		t.Fatal("Third request should be rejected")
	}

	// After the window elapses the budget is whole again.
	now = now.Add(time.Minute)
	result, err = limiter.Allow(ctx, "reset-key", config)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !result.Allowed {
		t.Error("Request after window reset should be allowed")
	}
	if result.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", result.Remaining)
	}
}

func TestRateLimiter_RejectionDoesNotExtendWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(WithClock(func() time.Time { return now }))

	config := ratelimit.Config{
		Window:      time.Minute,
		MaxRequests: 1,
	}

	first, err := limiter.Allow(ctx, "extend-key", config)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !first.Allowed {
		t.Fatal("First request should be allowed")
	}

	// Hammer the limiter mid-window. Rejections must not move the reset.
	now = now.Add(30 * time.Second)
	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "extend-key", config)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if result.Allowed {
			t.Fatal("Request within exhausted window should be rejected")
		}
		if !result.ResetAt.Equal(first.ResetAt) {
			t.Errorf("ResetAt = %v, want %v (rejections must not extend the window)", result.ResetAt, first.ResetAt)
		}
		if result.RetryAfter != 30*time.Second {
			t.Errorf("RetryAfter = %v, want 30s", result.RetryAfter)
		}
	}
}

func TestRateLimiter_DifferentKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := NewRateLimiter()

	config := ratelimit.Config{
		Window:      time.Minute,
		MaxRequests: 1,
	}

	// Budgets are independent per subject key.
	for _, key := range []string{
		"ratelimit:generation:free:alice",
		"ratelimit:generation:free:bob",
		"ratelimit:general:free:alice",
	} {
		result, err := limiter.Allow(ctx, key, config)
		if err != nil {
			t.Fatalf("Allow() for %s error: %v", key, err)
		}
		if !result.Allowed {
			t.Errorf("First request for %s should be allowed", key)
		}
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := NewRateLimiter()

	config := ratelimit.Config{
		Window:      time.Minute,
		MaxRequests: 50,
	}

	var wg sync.WaitGroup
	results := make(chan bool, 100)

	// 100 concurrent requests to the same key.
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := limiter.Allow(ctx, "concurrent-key", config)
			if err != nil {
				t.Errorf("Allow() error: %v", err)
				return
			}
			results <- result.Allowed
		}()
	}

	wg.Wait()
	close(results)

	allowed := 0
	for a := range results {
		if a {
			allowed++
		}
	}

	// Exactly the budget must be admitted, no more, no fewer.
	if allowed != 50 {
		t.Errorf("Allowed = %d, want exactly 50", allowed)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(WithClock(func() time.Time { return now }))

	config := ratelimit.Config{
		Window:      time.Minute,
		MaxRequests: 5,
	}

	if _, err := limiter.Allow(ctx, "sweep-a", config); err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if _, err := limiter.Allow(ctx, "sweep-b", config); err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if got := limiter.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2", got)
	}

	// Expire one window, keep the other alive.
	now = now.Add(90 * time.Second)
	if _, err := limiter.Allow(ctx, "sweep-b", config); err != nil {
		t.Fatalf("Allow() error: %v", err)
	}

	limiter.sweep()

	if got := limiter.Size(); got != 1 {
		t.Errorf("Size() after sweep = %d, want 1", got)
	}
}

func TestRateLimiter_StopTerminatesSweep(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := NewRateLimiter(WithSweepInterval(10 * time.Millisecond))
	limiter.StartSweep(ctx)

	if _, err := limiter.Allow(ctx, "stop-key", ratelimit.Config{Window: time.Minute, MaxRequests: 1}); err != nil {
		t.Fatalf("Allow() error: %v", err)
	}

	limiter.Stop()
	// Stop is idempotent.
	limiter.Stop()
}
