package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout bounds the whole readiness probe run. Load
// balancers poll frequently; a slow dependency must not pile up checks.
const healthCheckTimeout = 2 * time.Second

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleLive reports process liveness. It never touches dependencies.
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, healthResponse{Status: "ok"})
}

// HandleReady runs every registered probe concurrently under a shared
// deadline. Any failure or timeout yields 503 with per-component
// detail. With no probes registered it reports ready, which keeps local
// development and handler tests working without a database.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	// One slot per probe; each goroutine writes only its own index, so
	// no lock is needed. Errors are collected, not propagated, because
	// every probe must run to report its own status.
	results := make([]error, len(probes))
	var g errgroup.Group
	for i, probe := range probes {
		g.Go(func() error {
			results[i] = runProbe(ctx, probe)
			return nil
		})
	}
	_ = g.Wait()

	components := make(map[string]componentStatus, len(probes))
	ready := true
	for i, probe := range probes {
		if err := results[i]; err != nil {
			ready = false
			components[probe.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
		} else {
			components[probe.Name()] = componentStatus{Status: "healthy"}
		}
	}

	resp := healthResponse{Status: "ok", Components: components}
	if !ready {
		resp.Status = "unavailable"
		JSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}
	JSON(w, r, http.StatusOK, resp)
}

// runProbe shields the handler from panicking probes.
func runProbe(ctx context.Context, probe HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return probe.Check(ctx)
}

// ProbeFunc adapts a named function to the HealthProbe interface.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p ProbeFunc) Name() string                    { return p.ProbeName }
func (p ProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }
