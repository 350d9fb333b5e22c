package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestFixedWindowDeniesAfterLimitAndResets(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewFixedWindow(time.Minute, 100).WithClock(clock.Now)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		res, err := limiter.Check(ctx, "key-1")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if res.Remaining != 100-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 100-i, res.Remaining)
		}
	}

	clock.Advance(20 * time.Second)
	res, _ := limiter.Check(ctx, "key-1")
	if res.Allowed {
		t.Fatalf("expected request 101 to be denied")
	}
	if res.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", res.Remaining)
	}
	if res.RetryAfterSeconds != 40 {
		t.Fatalf("expected retry after 40s, got %d", res.RetryAfterSeconds)
	}

	clock.Advance(40 * time.Second)
	res, _ = limiter.Check(ctx, "key-1")
	if !res.Allowed || res.Remaining != 99 {
		t.Fatalf("expected fresh window after reset, got %+v", res)
	}
}

func TestFixedWindowKeysAreIndependent(t *testing.T) {
	limiter := NewFixedWindow(time.Minute, 1)
	ctx := context.Background()

	if res, _ := limiter.Check(ctx, "a"); !res.Allowed {
		t.Fatalf("expected first request for a to pass")
	}
	if res, _ := limiter.Check(ctx, "a"); res.Allowed {
		t.Fatalf("expected second request for a to be denied")
	}
	if res, _ := limiter.Check(ctx, "b"); !res.Allowed {
		t.Fatalf("expected b to have its own budget")
	}
}

func TestFixedWindowSweepEvictsIdleKeys(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewFixedWindow(time.Minute, 10).WithClock(clock.Now)
	ctx := context.Background()

	_, _ = limiter.Check(ctx, "idle")
	clock.Advance(90 * time.Second)
	_, _ = limiter.Check(ctx, "active")

	if removed := limiter.Sweep(); removed != 0 {
		t.Fatalf("expected nothing evicted before two windows, got %d", removed)
	}
	clock.Advance(31 * time.Second)
	if removed := limiter.Sweep(); removed != 1 {
		t.Fatalf("expected idle key evicted, got %d", removed)
	}
	if limiter.Len() != 1 {
		t.Fatalf("expected one tracked key, got %d", limiter.Len())
	}
}

func TestIPThrottleBurstThenDeny(t *testing.T) {
	throttle := NewIPThrottle(1, 3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	throttle.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !throttle.Allow("10.0.0.1") {
			t.Fatalf("expected burst request %d to pass", i+1)
		}
	}
	if throttle.Allow("10.0.0.1") {
		t.Fatalf("expected request beyond burst to be denied")
	}
	if !throttle.Allow("10.0.0.2") {
		t.Fatalf("expected other ip to pass")
	}

	now = now.Add(time.Second)
	if !throttle.Allow("10.0.0.1") {
		t.Fatalf("expected token refill after one second")
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	now := time.Unix(0, 0)
	if got := retryAfter(now, now.Add(1500*time.Millisecond)); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := retryAfter(now, now); got != 1 {
		t.Fatalf("expected minimum of 1, got %d", got)
	}
}

func TestRedisLimiterAgainstLiveServer(t *testing.T) {
	url := os.Getenv("FORMBASE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FORMBASE_TEST_REDIS_URL not set")
	}
	client, err := NewRedisClient(url)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer func() { _ = client.Close() }()

	limiter := NewRedisLimiter(client, time.Minute, 2)
	key := uuid.NewString()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, errCheck := limiter.Check(ctx, key)
		if errCheck != nil {
			t.Fatalf("check: %v", errCheck)
		}
		if !res.Allowed {
			t.Fatalf("expected request %d allowed", i+1)
		}
	}
	res, errCheck := limiter.Check(ctx, key)
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if res.Allowed || res.RetryAfterSeconds < 1 {
		t.Fatalf("expected denial with retry hint, got %+v", res)
	}
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	if _, err := NewRedisClient("not a url"); err == nil {
		t.Fatalf("expected parse error")
	}
}
