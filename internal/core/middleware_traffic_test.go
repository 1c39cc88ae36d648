package core

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cvforge/internal/types"
)

func limitedRequest(method string) *http.Request {
	req := httptest.NewRequest(method, "/v1/cvs", nil)
	return req.WithContext(types.WithActor(req.Context(), types.Actor{
		ID: "user-1", Type: types.ActorTypeUser, Role: types.RoleUser,
	}))
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	srv := newTestServer(t)
	srv.RateLimit = &MemoryRateLimitStore{}

	handler := srv.RateLimitMiddleware(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(http.MethodPost))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimit_DeniesOverLimit(t *testing.T) {
	srv := newTestServer(t) // limit 2 per window
	srv.RateLimit = &MemoryRateLimitStore{}
	handler := srv.RateLimitMiddleware(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest(http.MethodPost))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d unexpectedly limited: %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(http.MethodPost))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if resp := decodeErrorBody(t, rec); resp.Error.Code != string(types.ErrCodeRateLimit) {
		t.Errorf("unexpected code: %s", resp.Error.Code)
	}
}

func TestRateLimit_ReadsNotCounted(t *testing.T) {
	srv := newTestServer(t)
	store := &MemoryRateLimitStore{}
	srv.RateLimit = store
	handler := srv.RateLimitMiddleware(okHandler())

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest(http.MethodGet))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %d was limited: %d", i+1, rec.Code)
		}
	}
}

func TestRateLimit_FailsOpenOnStoreError(t *testing.T) {
	srv := newTestServer(t)
	srv.RateLimit = &MemoryRateLimitStore{Err: errors.New("redis down")}

	rec := httptest.NewRecorder()
	srv.RateLimitMiddleware(okHandler()).ServeHTTP(rec, limitedRequest(http.MethodPost))

	if rec.Code != http.StatusOK {
		t.Errorf("expected fail-open 200, got %d", rec.Code)
	}
}

func TestRateLimit_AdminExempt(t *testing.T) {
	srv := newTestServer(t)
	srv.RateLimit = &MemoryRateLimitStore{}
	handler := srv.RateLimitMiddleware(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/users/u1/plan", nil)
		req = req.WithContext(types.WithActor(req.Context(), types.Actor{
			ID: "admin", Type: types.ActorTypeAdmin, Role: types.RoleAdmin,
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("admin request %d limited: %d", i+1, rec.Code)
		}
	}
}

func TestRateLimit_DisabledByConfig(t *testing.T) {
	srv := newTestServer(t)
	srv.Config.Security.RateLimitEnabled = false
	srv.RateLimit = &MemoryRateLimitStore{}
	handler := srv.RateLimitMiddleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest(http.MethodPost))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d limited while disabled: %d", i+1, rec.Code)
		}
	}
}
