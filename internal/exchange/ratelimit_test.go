package exchange

import (
	"context"
	"testing"
	"time"
)

func TestNewRateLimiterStartsWithFullBurst(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter()
	for i := 0; i < 150; i++ {
		start := time.Now()
		if err := rl.Book.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() returned error: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("Wait() took %v on call %d, expected immediate within burst", elapsed, i)
		}
	}
}

func TestRateLimiterBlocksPastBurst(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter()
	for i := 0; i < 150; i++ {
		if err := rl.Book.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	start := time.Now()
	if err := rl.Book.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected call past burst to wait, took %v", elapsed)
	}
}

func TestRateLimiterRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter()
	for i := 0; i < 150; i++ {
		_ = rl.Book.Wait(context.Background())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	if err := rl.Book.Wait(ctx); err == nil {
		t.Error("expected context deadline error")
	}
}
