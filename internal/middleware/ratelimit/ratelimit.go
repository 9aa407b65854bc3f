// Package ratelimit enforces a fixed-window request budget per client.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter counts requests per client key in fixed windows. Report endpoints
// fan out to the ledger and the rate source, so probes are usually exempted.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	exempt   map[string]struct{}
	stop     chan struct{}
	stopOnce sync.Once
	rejected atomic.Int64

	limit    int
	period   time.Duration
	idleTTL  time.Duration
	interval time.Duration
	now      func() time.Time
}

type window struct {
	start time.Time
	last  time.Time
	count int
}

type Config struct {
	RequestsPerMinute int
	// Window overrides the one-minute period; RequestsPerMinute then applies per Window.
	Window          time.Duration
	CleanupInterval time.Duration
	// ExemptPaths are served without being counted.
	ExemptPaths []string
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Window:            time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter starts a limiter and its sweeper goroutine; call Stop to end it.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	exempt := make(map[string]struct{}, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = struct{}{}
	}

	rl := &Limiter{
		windows:  make(map[string]*window),
		exempt:   exempt,
		stop:     make(chan struct{}),
		limit:    cfg.RequestsPerMinute,
		period:   cfg.Window,
		idleTTL:  10 * cfg.Window,
		interval: cfg.CleanupInterval,
		now:      time.Now,
	}
	go rl.sweepLoop()
	return rl
}

// Allow counts a request from key against its current window.
func (rl *Limiter) Allow(key string) bool {
	ok, _ := rl.Reserve(key)
	return ok
}

// Reserve is Allow that also reports how long a rejected client must wait
// for its window to reset.
func (rl *Limiter) Reserve(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.period {
		rl.windows[key] = &window{start: now, last: now, count: 1}
		return true, 0
	}

	w.count++
	w.last = now
	if w.count <= rl.limit {
		return true, 0
	}
	rl.rejected.Add(1)
	return false, w.start.Add(rl.period).Sub(now)
}

// Middleware rejects over-budget requests through onLimit, or a plain 429
// when onLimit is nil. Retry-After carries the whole seconds left in the
// client's window, at least one.
func (rl *Limiter) Middleware(key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := rl.exempt[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := rl.Reserve(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(wait)))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func (rl *Limiter) sweepLoop() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stop:
			return
		}
	}
}

// sweep drops clients idle for ten windows.
func (rl *Limiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	removed := 0
	for key, w := range rl.windows {
		if w.last.Before(cutoff) {
			delete(rl.windows, key)
			removed++
		}
	}
	return removed
}

func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

type Metrics struct {
	Rejected int64
	Clients  int
}

func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		Rejected: rl.rejected.Load(),
		Clients:  rl.ActiveClients(),
	}
}
