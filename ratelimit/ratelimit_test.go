package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/touchlinehq/touchline/ttlcache"
)

// clocked pins both the limiter and its cache to the same fake clock.
func clocked(l *WindowLimiter, clock *time.Time) {
	l.now = func() time.Time { return *clock }
	l.cache = ttlcache.NewWithClock[Window](l.window, func() time.Time { return *clock })
}

func TestWindowLimiterAdmitsExactlyLimit(t *testing.T) {
	t.Parallel()

	l := NewWindowLimiter(3, time.Second)
	ctx := context.Background()

	var admitted, rejected int
	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "caller-a")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if ok {
			admitted++
		} else {
			rejected++
		}
	}
	if admitted != 3 || rejected != 2 {
		t.Fatalf("admitted %d rejected %d, want 3 and 2", admitted, rejected)
	}
}

func TestWindowLimiterResetsAfterWindow(t *testing.T) {
	t.Parallel()

	l := NewWindowLimiter(3, time.Second)
	clock := time.Now()
	clocked(l, &clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(ctx, "caller-a"); !ok {
			t.Fatalf("Allow() #%d = false inside budget", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "caller-a"); ok {
		t.Fatalf("Allow() over budget = true, want false")
	}

	clock = clock.Add(1100 * time.Millisecond)
	if ok, _ := l.Allow(ctx, "caller-a"); !ok {
		t.Fatalf("Allow() after window rollover = false, want true")
	}
}

func TestWindowAnchorsAtFirstRequest(t *testing.T) {
	t.Parallel()

	l := NewWindowLimiter(2, time.Second)
	clock := time.Now()
	clocked(l, &clock)
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "caller-a"); !ok {
		t.Fatalf("first Allow() = false")
	}
	// A second request late in the window must not extend it.
	clock = clock.Add(900 * time.Millisecond)
	if ok, _ := l.Allow(ctx, "caller-a"); !ok {
		t.Fatalf("second Allow() = false inside budget")
	}
	if ok, _ := l.Allow(ctx, "caller-a"); ok {
		t.Fatalf("third Allow() = true over budget")
	}
	// 1.05s after the first request the window has rolled over even though
	// the last request was only 150ms ago.
	clock = clock.Add(150 * time.Millisecond)
	if ok, _ := l.Allow(ctx, "caller-a"); !ok {
		t.Fatalf("Allow() after anchored rollover = false, want true")
	}
}

func TestWindowLimiterExactUnderContention(t *testing.T) {
	t.Parallel()

	const limit = 5
	l := NewWindowLimiter(limit, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	var admitted atomic.Int64
	for i := 0; i < 4*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(ctx, "caller-a"); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != limit {
		t.Fatalf("admitted %d concurrent requests, want exactly %d", got, limit)
	}
}

func TestLimiterIsolatesIdentities(t *testing.T) {
	t.Parallel()

	l := NewWindowLimiter(1, time.Second)
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "caller-a"); !ok {
		t.Fatalf("Allow(a) = false")
	}
	if ok, _ := l.Allow(ctx, "caller-b"); !ok {
		t.Fatalf("Allow(b) = false, identities must not share a window")
	}
	if ok, _ := l.Allow(ctx, "caller-a"); ok {
		t.Fatalf("Allow(a) second = true, want false")
	}
}
