package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/orefield/specharvest/internal/metrics"
)

func TestLimiterWait(t *testing.T) {
	metrics.Init()

	l := New(Config{
		DefaultRPS:   10, // one token every 100ms
		DefaultBurst: 1,
	})

	ctx := context.Background()

	// First call consumes the initial burst token immediately.
	if err := l.Wait(ctx, "https://test.com/specs"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second call should wait roughly one refill interval.
	start := time.Now()
	if err := l.Wait(ctx, "https://test.com/specs"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiterDifferentDomains(t *testing.T) {
	metrics.Init()

	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})

	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatal(err)
	}

	// Domain B has its own bucket and should not be blocked by A.
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("domain B blocked unexpectedly")
	}
}

func TestLimiterContextCancel(t *testing.T) {
	metrics.Init()

	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "https://c.com/1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Wait(ctx, "https://c.com/2"); err == nil {
		t.Fatal("expected error when context expires before a token is available")
	}
}
