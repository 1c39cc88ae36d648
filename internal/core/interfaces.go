package core

import (
	"context"
	"time"

	"cvforge/internal/types"
)

// Authenticator resolves an opaque bearer token to the Actor performing
// the request. Implemented by the auth service in production and by a
// stub in tests.
//
// Implementations return ErrCodeAuthTokenInvalid for malformed or
// unknown tokens and ErrCodeAuthSessionExpired for sessions past their
// expiry. The middleware translates both into 401 responses.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (*types.User, error)
}

// RateLimitStore abstracts the backing counter for request throttling.
// Production uses the Redis fixed-window limiter in internal/cache.
type RateLimitStore interface {
	// Allow records a hit for key and reports whether it stays within
	// limit for the current window. Implementations fail open: on a
	// store error they return allowed=true alongside the error.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// HealthProbe is a readiness check for one dependency (database,
// Redis). Probes run concurrently under a shared deadline.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}
