package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"insights/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Component: log.ComponentHTTP, Handler: log.NewTextHandler(&buf, slog.LevelInfo)})
	m := NewMiddleware(logger, Options{
		ClientIP: func(*http.Request) string { return "10.0.0.1" },
		UserID:   func(r *http.Request) string { return r.Header.Get("X-User-ID") },
	})

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"x"}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/budget", nil)
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q, want req_ prefix", seen)
	}
	if rr.Header().Get(HeaderRequestID) != seen {
		t.Errorf("response header = %q, want %q", rr.Header().Get(HeaderRequestID), seen)
	}
	for _, want := range []string{"status_code=422", "client_ip=10.0.0.1", "user_id=alice", "bytes=13", "request_id=" + seen} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output missing %q:\n%s", want, buf.String())
		}
	}
	if got := m.GetMetrics(); got.Requests != 1 || got.ClientErrors != 1 || got.ServerErrors != 0 {
		t.Errorf("metrics = %+v", got)
	}
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	m := NewMiddleware(log.New(log.Config{Handler: log.NewTextHandler(&bytes.Buffer{}, slog.LevelInfo)}), Options{})

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "upstream-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "upstream-1" {
		t.Errorf("request id = %q, want upstream-1", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", maxRequestIDLength+1))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("overlong id should be replaced, got %q", seen)
	}
}

func TestMiddlewareCountsServerErrors(t *testing.T) {
	m := NewMiddleware(log.New(log.Config{Handler: log.NewTextHandler(&bytes.Buffer{}, slog.LevelInfo)}), Options{})
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := m.GetMetrics(); got.ServerErrors != 1 {
		t.Errorf("metrics = %+v, first status should win", got)
	}
}
