package core

import (
	"log/slog"
	"net/http"
	"time"

	"cvforge/internal/types"
)

// mutatingMethods lists the HTTP methods subject to rate limiting.
// Reads are cheap; the expensive surfaces (AI calls, renders, checkout)
// are all mutations.
var mutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// RateLimitMiddleware throttles mutating requests per actor using a
// fixed-window counter. Limits come from configuration; the store
// fails open, so an outage degrades to unthrottled traffic rather than
// a dead API. Admin actors are exempt.
func (s *Server) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimit == nil || !s.Config.Security.RateLimitEnabled {
			next.ServeHTTP(w, r)
			return
		}

		if !mutatingMethods[r.Method] {
			next.ServeHTTP(w, r)
			return
		}

		// Unauthenticated requests fall through to the auth 401.
		actor, ok := types.GetActor(r.Context())
		if !ok || actor.Type == types.ActorTypeAdmin {
			next.ServeHTTP(w, r)
			return
		}

		limit := s.Config.Security.RateLimitPerMin
		window := s.Config.Security.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}

		allowed, err := s.RateLimit.Allow(r.Context(), actor.ID, limit, window)
		if err != nil {
			s.Logger.Warn("rate limit store error, allowing request",
				slog.String("actor_id", actor.ID),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("actor_id", actor.ID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			JSON(w, r, http.StatusTooManyRequests, APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodeRateLimit),
					Message:   "Too many requests. Retry shortly.",
					RequestID: types.GetRequestID(r.Context()),
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
