package handlers

import (
	"sync"
	"time"
)

// pendingEntry is a short-lived value awaiting a second step.
type pendingEntry[T any] struct {
	value    T
	expires  time.Time
	failures int
}

// pendingStore keeps short-lived values in memory, such as TOTP secrets awaiting confirmation,
// password-verified logins awaiting a second factor and WebAuthn ceremony state.
type pendingStore[T any] struct {
	ttl time.Duration
	// maxFailures drops an entry after that many failed attempts. Zero disables the limit.
	maxFailures int
	mu          sync.Mutex
	items       map[string]pendingEntry[T]
}

// newPendingStore creates an empty store whose entries live for ttl.
func newPendingStore[T any](ttl time.Duration, maxFailures int) *pendingStore[T] {
	return &pendingStore[T]{ttl: ttl, maxFailures: maxFailures, items: make(map[string]pendingEntry[T])}
}

// Set stores a value with expiry and drops expired entries.
func (s *pendingStore[T]) Set(key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, entry := range s.items {
		if now.After(entry.expires) {
			delete(s.items, k)
		}
	}
	s.items[key] = pendingEntry[T]{value: value, expires: now.Add(s.ttl)}
}

// Get returns a value if present and not expired.
func (s *pendingStore[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	entry, ok := s.items[key]
	if !ok {
		return zero, false
	}
	if time.Now().After(entry.expires) {
		delete(s.items, key)
		return zero, false
	}
	return entry.value, true
}

// Fail counts a failed attempt against key and removes the entry once the limit is reached.
// It reports whether the entry is still usable.
func (s *pendingStore[T]) Fail(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return false
	}
	entry.failures++
	if s.maxFailures > 0 && entry.failures >= s.maxFailures {
		delete(s.items, key)
		return false
	}
	s.items[key] = entry
	return true
}

// Delete removes an entry.
func (s *pendingStore[T]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}
