// Package core provides the HTTP chassis for the CVForge API. It owns
// the chi router, the response envelope, request decoding and
// validation, and the cross-cutting middleware (recovery, request IDs,
// logging, auth, rate limiting) that runs before domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cvforge/internal/config"
)

// Server bundles the dependencies every middleware and handler needs.
// Optional collaborators (Authenticator, RateLimitStore, HealthProbes)
// may be nil; the corresponding middleware passes through when unset so
// tests can exercise slices of the chain in isolation.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Authenticator Authenticator
	RateLimit     RateLimitStore
	HealthProbes  []HealthProbe

	// Route registrars populated by main before MountRoutes. The
	// indirection keeps core free of handler-package imports. Public
	// registrars mount under /v1 before auth runs (register, login);
	// webhook registrars mount under /webhooks outside auth entirely.
	PublicV1Registrars []func(chi.Router)
	V1RouteRegistrars  []func(chi.Router)
	WebhookRegistrars  []func(chi.Router)

	router *chi.Mux
}

// NewServer wires the router and validator. Routes are mounted by the
// caller via MountRoutes after registrars are attached.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the underlying chi.Mux for tests and route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server-held resources. Database pools and the Redis
// client are owned by main and closed there; the server itself only has
// to flush its logger, which slog does synchronously, so this is a
// log-and-return today. Kept as a method so main's shutdown sequence
// does not change when the server grows resources of its own.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
