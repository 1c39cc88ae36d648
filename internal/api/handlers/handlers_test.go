package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"cvforge/internal/core"
	"cvforge/internal/types"
)

// testLogger discards output; handler tests assert on responses only.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

func testActor() types.Actor {
	return types.Actor{
		ID:    "user-1",
		Type:  types.ActorTypeUser,
		Email: "jo@example.com",
		Role:  types.RoleUser,
	}
}

// serveAs routes the request through a chi router that the handler's
// RegisterRoutes populated, with the actor pre-seeded in context the
// way the auth middleware would.
func serveAs(t *testing.T, register func(chi.Router), actor *types.Actor, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if actor != nil {
		req = req.WithContext(types.WithActor(req.Context(), *actor))
	}

	router := chi.NewRouter()
	register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// newAuthedRequest builds a request with the standard test actor in
// context, for driving a handler method directly when headers matter.
func newAuthedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(types.WithActor(req.Context(), testActor()))
}

// record serves a single handler func and returns the recorder.
func record(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// errorCode extracts the error code from an APIErrorResponse body.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error body: %v\n%s", err, rec.Body.String())
	}
	return resp.Error.Code
}

// dataField unmarshals the data envelope into dst.
func dataField(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v\n%s", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		t.Fatalf("failed to unmarshal data: %v", err)
	}
}
