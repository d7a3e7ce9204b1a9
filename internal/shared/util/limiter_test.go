package util

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	// two rescans back to back, then one every 100ms
	l := NewLimiter(10, 2)

	for i := 0; i < 2; i++ {
		if !l.Allow(1) {
			t.Fatalf("rescan %d within the burst was rejected", i)
		}
	}
	if l.Allow(1) {
		t.Fatal("rescan beyond the burst was allowed")
	}

	time.Sleep(150 * time.Millisecond)
	if !l.Allow(1) {
		t.Fatal("no token after the refill interval")
	}
}

func TestLimiter_WaitPacesRescans(t *testing.T) {
	l := NewLimiter(50, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx, 1); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	// first token is immediate, the next two are 20ms apart
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("three rescans took %v, expected pacing", elapsed)
	}
}

func TestLimiter_WaitHonoursCancellation(t *testing.T) {
	l := NewLimiter(0.001, 1)
	l.Allow(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx, 1); err == nil {
		t.Fatal("cancelled wait returned nil")
	}
}

func TestLimiter_NonPositiveRateIsUnlimited(t *testing.T) {
	for _, r := range []float64{0, -1} {
		l := NewLimiter(r, 0)
		for i := 0; i < 100; i++ {
			if !l.Allow(1) {
				t.Fatalf("rate %v: event %d rejected by an unlimited limiter", r, i)
			}
		}
	}
}
