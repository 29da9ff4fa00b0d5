package ratelimit

import (
	"sync"
	"time"

	"fishka_server/internal/metrics"
)

type window struct {
	start time.Time
	count int
}

// Limiter is a fixed-window counter keyed by an arbitrary string
// (client IP, player id). The first max calls inside a window pass,
// everything after that is blocked until the window rolls over.
type Limiter struct {
	max    int
	window time.Duration
	scope  string

	mu      sync.Mutex
	entries map[string]*window

	now func() time.Time
}

// New creates a limiter allowing max calls per window. scope labels
// the prometheus counters.
func New(max int, win time.Duration, scope string) *Limiter {
	return &Limiter{
		max:     max,
		window:  win,
		scope:   scope,
		entries: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow reports whether a call under key fits in the current window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.entries[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.entries[key] = &window{start: now, count: 1}
		metrics.RLRequests.WithLabelValues(l.scope).Inc()
		return true
	}

	w.count++
	if w.count > l.max {
		metrics.RLBlocked.WithLabelValues(l.scope).Inc()
		return false
	}

	metrics.RLRequests.WithLabelValues(l.scope).Inc()
	return true
}

// Reset forgets any window for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Prune drops windows that rolled over, keeping the map bounded.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.entries {
		if now.Sub(w.start) >= l.window {
			delete(l.entries, key)
		}
	}
}

// SetClock overrides the time source (tests).
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}
