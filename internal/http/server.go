// Package http serves category reports and budgets as a JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"insights/internal/cache"
	"insights/internal/log"
	"insights/internal/middleware/ratelimit"
	"insights/internal/middleware/security"
	"insights/internal/middleware/trace"
)

type ServerConfig struct {
	Addr           string
	DefaultUserID  string
	RateLimitRPM   int // 0 disables rate limiting
	TrustedProxies []string
	RequestTimeout time.Duration
	// MaxHeaderBytes defaults to 64KB.
	MaxHeaderBytes int
	// Caches feeds the cache section of /metrics; nil leaves it out.
	Caches CacheStats
}

// CacheStats reports counters of the named report caches.
type CacheStats interface {
	Stats() map[string]cache.Stats
}

type Server struct {
	http.Server
	reports     ReportService
	ready       ReadinessChecker
	defaultUser string
	logger      *log.StructuredLogger
	limiter     *ratelimit.Limiter
	tracer      *trace.Middleware
	detector    *security.Detector
	caches      CacheStats
	started     time.Time
}

// NewServer wires routes and middleware. ready may be nil for sources that
// are always available.
func NewServer(cfg ServerConfig, logger *log.Logger, reports ReportService, ready ReadinessChecker) *Server {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentHTTP, Handler: slog.Default().Handler()})
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = 1 << 16
	}

	s := &Server{
		reports:     reports,
		ready:       ready,
		defaultUser: cfg.DefaultUserID,
		logger:      log.NewStructuredLogger(logger),
		caches:      cfg.Caches,
		started:     time.Now(),
	}

	detector := security.NewDetector(UserHeader)
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}
	tracer := trace.NewMiddleware(logger, trace.Options{
		ClientIP: detector.ExtractClientIP,
		UserID:   func(r *http.Request) string { return r.Header.Get(UserHeader) },
	})
	s.tracer, s.detector = tracer, detector
	headerCfg := security.DefaultHeadersConfig()
	headerCfg.VaryOn = []string{UserHeader}
	headers := security.NewHeadersMiddleware(headerCfg)

	r := chi.NewRouter()
	r.Use(log.Middleware(logger))
	r.Use(tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(headers.Middleware)
	r.Use(detector.Middleware)
	if cfg.RateLimitRPM > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitRPM,
			ExemptPaths:       []string{"/healthz", "/readyz", "/metrics"},
		})
		r.Use(s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}))
	}

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		r.Get("/reports/categories", s.handleCategoryReport)
		r.Get("/budget", s.handleBudget)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	return s
}

// Shutdown stops background helpers and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.Server.Shutdown(ctx)
}
