package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipBucket pairs a token bucket with its last use.
type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPThrottle is a per-client-IP token bucket guarding unauthenticated endpoints.
type IPThrottle struct {
	rate  rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*ipBucket
}

// NewIPThrottle allows perSecond sustained requests with bursts of burst per IP.
func NewIPThrottle(perSecond float64, burst int) *IPThrottle {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 20
	}
	return &IPThrottle{
		rate:    rate.Limit(perSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*ipBucket),
	}
}

// Allow reports whether a request from ip may proceed.
func (t *IPThrottle) Allow(ip string) bool {
	now := t.now()

	t.mu.Lock()
	bucket, ok := t.buckets[ip]
	if !ok {
		bucket = &ipBucket{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.buckets[ip] = bucket
	}
	bucket.lastSeen = now
	t.mu.Unlock()

	return bucket.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than the idle period.
func (t *IPThrottle) Sweep() int {
	cutoff := t.now().Add(-t.idle)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for ip, bucket := range t.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(t.buckets, ip)
			removed++
		}
	}
	return removed
}

// Start sweeps idle buckets periodically until ctx is cancelled.
func (t *IPThrottle) Start(ctx context.Context) {
	if t == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(t.idle)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}
