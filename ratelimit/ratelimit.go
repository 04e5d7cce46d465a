// Package ratelimit implements fixed-window request limiting per caller
// identity: non-overlapping windows anchored at the first request, a
// plain counter inside each. Deliberately not a token bucket or sliding
// window; the goal is abuse damping, not exactness under adversarial
// clients.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/touchlinehq/touchline/ttlcache"
)

const (
	DefaultLimit  = 30
	DefaultWindow = 60 * time.Second
)

// Limiter decides whether one more request from identity fits the budget.
type Limiter interface {
	Allow(ctx context.Context, identity string) (bool, error)
}

// Window is the cached counter state for one identity's current window.
type Window struct {
	Count   int
	ResetAt time.Time
}

// WindowLimiter counts requests in a TTL cache. The entry for an identity
// expires when its window does, so a new window starts at the next
// request with a fresh TTL. The mutex spans the whole read-count-write so
// concurrent requests from one identity cannot share a count.
type WindowLimiter struct {
	mu     sync.Mutex
	cache  *ttlcache.Cache[Window]
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &WindowLimiter{
		cache:  ttlcache.New[Window](window),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow admits the request unless the identity already spent its budget in
// the current window. The counter is re-set with the window's remaining
// TTL, never a fresh one, so the window resets a fixed interval after the
// first request in it.
func (l *WindowLimiter) Allow(_ context.Context, identity string) (bool, error) {
	if l == nil {
		return true, nil
	}
	key := "rate:" + identity

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	w, ok := l.cache.Get(key)
	if !ok || !now.Before(w.ResetAt) {
		l.cache.SetTTL(key, Window{Count: 1, ResetAt: now.Add(l.window)}, l.window)
		return true, nil
	}
	if w.Count >= l.limit {
		return false, nil
	}
	w.Count++
	l.cache.SetTTL(key, w, w.ResetAt.Sub(now))
	return true, nil
}
