package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline on request contexts. The
// AI upstream is the slowest dependency the API waits on; its client
// timeout is 60s, so the request deadline sits just above it.
const defaultRequestTimeout = 65 * time.Second

// defaultRedactedHeaders lists headers masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Admin-Key",
	"Stripe-Signature",
}

// MountRoutes registers the global middleware chain and the routing
// hierarchy. Call after attaching route registrars.
//
// Chain order matters:
//  1. Recoverer catches everything below it.
//  2. ContextTimeout bounds the whole request.
//  3. RequestID before the logger so every line carries it.
//  4. SecurityHeaders and CORS on all responses, errors included.
//  5. Auth and RateLimit apply only inside the protected /v1 group;
//     rate limiting keys on the Actor, so it must follow auth.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))

	s.router.Get("/health/live", s.HandleLive)
	s.router.Get("/health/ready", s.HandleReady)

	s.router.Route("/v1", func(r chi.Router) {
		for _, reg := range s.PublicV1Registrars {
			reg(r)
		}

		r.Group(func(pr chi.Router) {
			pr.Use(s.AuthMiddleware)
			pr.Use(s.RateLimitMiddleware)
			for _, reg := range s.V1RouteRegistrars {
				reg(pr)
			}
		})
	})

	if len(s.WebhookRegistrars) > 0 {
		s.router.Route("/webhooks", func(r chi.Router) {
			for _, reg := range s.WebhookRegistrars {
				reg(r)
			}
		})
	}
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CORSAllowedOrigins) > 0 {
		return s.Config.Security.CORSAllowedOrigins
	}
	return []string{"*"}
}
