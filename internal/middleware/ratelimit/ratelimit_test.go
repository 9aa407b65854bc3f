package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *time.Time) {
	t.Helper()
	cfg.CleanupInterval = time.Hour
	rl := NewLimiter(cfg)
	t.Cleanup(rl.Stop)
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiterAllow(t *testing.T) {
	rl, now := newTestLimiter(t, Config{RequestsPerMinute: 2})

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("other clients have their own budget")
	}

	*now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("a new window should reset the budget")
	}
	if got := rl.GetMetrics(); got.Rejected != 1 || got.Clients != 2 {
		t.Errorf("metrics = %+v", got)
	}
}

func TestLimiterReserveWait(t *testing.T) {
	rl, now := newTestLimiter(t, Config{RequestsPerMinute: 1, Window: 30 * time.Second})

	rl.Allow("a")
	*now = now.Add(10 * time.Second)
	ok, wait := rl.Reserve("a")
	if ok {
		t.Fatal("second request should be limited")
	}
	if wait != 20*time.Second {
		t.Errorf("wait = %v, want 20s", wait)
	}
}

func TestLimiterSweep(t *testing.T) {
	rl, now := newTestLimiter(t, Config{RequestsPerMinute: 5})
	rl.Allow("a")
	*now = now.Add(5 * time.Minute)
	rl.Allow("b")

	*now = now.Add(6 * time.Minute)
	if removed := rl.sweep(); removed != 1 {
		t.Errorf("sweep() = %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", rl.ActiveClients())
	}
}

func TestRetrySeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{59*time.Second + time.Millisecond, 60},
		{20 * time.Second, 20},
	}
	for _, tt := range tests {
		if got := retrySeconds(tt.in); got != tt.want {
			t.Errorf("retrySeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLimiterMiddleware(t *testing.T) {
	rl, now := newTestLimiter(t, Config{RequestsPerMinute: 1, ExemptPaths: []string{"/healthz"}})
	limited := 0
	h := rl.Middleware(
		func(*http.Request) string { return "a" },
		func(w http.ResponseWriter, r *http.Request) {
			limited++
			w.WriteHeader(http.StatusTooManyRequests)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	serve := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	if rr := serve("/api/v1/budget"); rr.Code != http.StatusOK {
		t.Fatalf("first status = %d", rr.Code)
	}
	*now = now.Add(15 * time.Second)
	second := serve("/api/v1/budget")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", second.Code)
	}
	if limited != 1 || second.Header().Get("Retry-After") != "45" {
		t.Errorf("limited=%d retry-after=%q", limited, second.Header().Get("Retry-After"))
	}
	for i := 0; i < 3; i++ {
		if rr := serve("/healthz"); rr.Code != http.StatusOK {
			t.Fatalf("exempt path limited: %d", rr.Code)
		}
	}
}
