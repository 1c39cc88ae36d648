package core

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"cvforge/internal/config"
)

const testAdminKey = "test-admin-key-0123456789abcdef-xyz"

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Security: config.SecurityConfig{
			AdminAPIKey:        config.SecretString(testAdminKey),
			RateLimitPerMin:    2,
			RateLimitWindow:    time.Minute,
			RateLimitEnabled:   true,
			CORSAllowedOrigins: []string{"*"},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv
}

func TestNewServer_RequiresConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewServer(nil, logger); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewServer_RequiresLogger(t *testing.T) {
	if _, err := NewServer(testConfig(), nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestNewServer_InitializesRouterAndValidator(t *testing.T) {
	srv := newTestServer(t)
	if srv.Router() == nil {
		t.Error("router not initialized")
	}
	if srv.Validator == nil {
		t.Error("validator not initialized")
	}
	if srv.Handler() == nil {
		t.Error("handler not available")
	}
}
