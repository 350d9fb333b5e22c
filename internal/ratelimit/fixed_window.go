package ratelimit

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// windowEntry tracks one key's current window.
type windowEntry struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// FixedWindow is a process-local fixed window limiter. State is not shared across instances.
type FixedWindow struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*windowEntry
}

// NewFixedWindow creates an in-memory limiter. Non-positive arguments fall back to the defaults.
func NewFixedWindow(window time.Duration, limit int) *FixedWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &FixedWindow{
		window:  window,
		limit:   limit,
		now:     time.Now,
		entries: make(map[string]*windowEntry),
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *FixedWindow) WithClock(now func() time.Time) *FixedWindow {
	if now != nil {
		l.now = now
	}
	return l
}

// Check counts a request for key.
func (l *FixedWindow) Check(_ context.Context, key string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || !now.Before(entry.windowStart.Add(l.window)) {
		entry = &windowEntry{windowStart: now}
		l.entries[key] = entry
	}
	entry.count++
	entry.lastSeen = now

	resetAt := entry.windowStart.Add(l.window)
	result := Result{
		Allowed: entry.count <= l.limit,
		Limit:   l.limit,
		ResetAt: resetAt,
	}
	if result.Allowed {
		result.Remaining = l.limit - entry.count
	} else {
		result.RetryAfterSeconds = retryAfter(now, resetAt)
	}
	return result, nil
}

// Sweep evicts entries untouched for two windows and returns how many were removed.
func (l *FixedWindow) Sweep() int {
	cutoff := l.now().Add(-2 * l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start sweeps once per window until ctx is cancelled.
func (l *FixedWindow) Start(ctx context.Context) {
	if l == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := l.Sweep(); removed > 0 {
					log.Debugf("ratelimit: evicted %d idle keys", removed)
				}
			}
		}
	}()
}
