// Package ratelimit implements per-key request limiting for the API surfaces.
package ratelimit

import (
	"context"
	"time"
)

const (
	// DefaultWindow is the fixed window length.
	DefaultWindow = 60 * time.Second
	// DefaultLimit is the number of requests allowed per window.
	DefaultLimit = 100
)

// Result describes the outcome of a single check.
type Result struct {
	Allowed           bool
	Limit             int
	Remaining         int
	ResetAt           time.Time
	RetryAfterSeconds int // Set only when Allowed is false.
}

// Limiter counts requests for a key and reports whether the current one is allowed.
type Limiter interface {
	Check(ctx context.Context, key string) (Result, error)
}

// retryAfter rounds the time until reset up to whole seconds, never below 1.
func retryAfter(now, resetAt time.Time) int {
	remaining := resetAt.Sub(now)
	if remaining <= 0 {
		return 1
	}
	seconds := int((remaining + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
