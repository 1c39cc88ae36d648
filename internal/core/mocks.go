package core

import (
	"context"
	"sync"
	"time"

	"cvforge/internal/types"
)

// MockAuthenticator implements Authenticator for tests. Set User to
// resolve every token to that user, or Err to simulate a failure.
// Tokens passed to Resolve are recorded for assertions.
type MockAuthenticator struct {
	User *types.User
	Err  error

	mu    sync.Mutex
	Calls []string
}

func (m *MockAuthenticator) Resolve(ctx context.Context, token string) (*types.User, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return m.User, nil
}

// MemoryRateLimitStore is an in-memory RateLimitStore for tests and
// local development. Windows never expire; tests are short-lived.
type MemoryRateLimitStore struct {
	// Err, when set, is returned from Allow with allowed=true to mimic
	// the fail-open contract of the Redis store.
	Err error

	mu     sync.Mutex
	counts map[string]int
}

func (s *MemoryRateLimitStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if s.Err != nil {
		return true, s.Err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[key]++
	return s.counts[key] <= limit, nil
}
