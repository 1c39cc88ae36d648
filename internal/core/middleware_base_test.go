package core

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"cvforge/internal/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
}

func TestRecoverer_PassThrough(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Recoverer(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRecoverer_PanicBecomesJSON500(t *testing.T) {
	srv := newTestServer(t)

	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-7"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	resp := decodeErrorBody(t, rec)
	if resp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("unexpected code: %s", resp.Error.Code)
	}
	if resp.Error.RequestID != "req-7" {
		t.Errorf("request id lost: %q", resp.Error.RequestID)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("panic value leaked to client")
	}
}

func TestRequestID_GeneratedWhenAbsent(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if seen == "" {
		t.Fatal("no request id in context")
	}
	if rec.Header().Get("X-Request-Id") != seen {
		t.Error("response header does not match context value")
	}
	if !regexp.MustCompile(`^[0-9a-f-]{36}$`).MatchString(seen) {
		t.Errorf("not a uuid: %q", seen)
	}
}

func TestRequestID_PropagatedWhenPresent(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-Id", "client-supplied-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "client-supplied-id" {
		t.Errorf("expected propagated id, got %q", seen)
	}
}

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line not JSON: %v\n%s", err, buf.String())
	}
	return entry
}

func TestRequestLogger_LogsStatusAndRedactsAuth(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger, []string{"Authorization"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/cvs", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := logLine(t, &buf)
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("unexpected status: %v", entry["status"])
	}
	if entry["path"] != "/v1/cvs" {
		t.Errorf("unexpected path: %v", entry["path"])
	}
	if strings.Contains(buf.String(), "secret-token") {
		t.Error("authorization header value leaked into logs")
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Error("expected redaction marker in logs")
	}
}

func TestRequestLogger_ServerErrorsLogAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	if entry := logLine(t, &buf); entry["level"] != "ERROR" {
		t.Errorf("expected ERROR level, got %v", entry["level"])
	}
}

func TestSecurityHeaders_SetOnResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeadersMiddleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
}

func TestCORS_PreflightAnsweredDirectly(t *testing.T) {
	handler := NewCORSMiddleware([]string{"https://app.cvforge.example"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/cvs", nil)
	req.Header.Set("Origin", "https://app.cvforge.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.cvforge.example" {
		t.Error("missing allow-origin header")
	}
}

func TestCORS_DisallowedOriginGetsNoHeaders(t *testing.T) {
	handler := NewCORSMiddleware([]string{"https://app.cvforge.example"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/cvs", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("allow-origin set for disallowed origin")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("non-preflight request should still be served, got %d", rec.Code)
	}
}
