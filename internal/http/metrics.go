package http

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// handleMetrics writes request, rate limit, detection and report cache
// counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	tm := s.tracer.GetMetrics()
	metric(w, "insights_http_requests_total", "counter", "Finished HTTP requests.", tm.Requests)
	metric(w, "insights_http_client_errors_total", "counter", "Requests answered with a 4xx status.", tm.ClientErrors)
	metric(w, "insights_http_server_errors_total", "counter", "Requests answered with a 5xx status.", tm.ServerErrors)
	metric(w, "insights_http_last_request_seconds", "gauge", "Duration of the latest request.", tm.LastLatency.Seconds())

	dm := s.detector.GetMetrics()
	metric(w, "insights_suspicious_requests_total", "counter", "Requests flagged by the detector.", dm.SuspiciousRequests)
	metric(w, "insights_invalid_forwarded_ip_total", "counter", "Unparseable X-Forwarded-For addresses from trusted proxies.", dm.InvalidIPAttempts)

	if s.limiter != nil {
		lm := s.limiter.GetMetrics()
		metric(w, "insights_rate_limited_total", "counter", "Requests rejected by the rate limiter.", lm.Rejected)
		metric(w, "insights_rate_limit_clients", "gauge", "Clients with an open rate limit window.", lm.Clients)
	}

	if s.caches != nil {
		stats := s.caches.Stats()
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)

		header(w, "insights_cache_entries", "gauge", "Entries held per report cache.")
		for _, n := range names {
			sample(w, "insights_cache_entries", cacheLabel(n), stats[n].Entries)
		}
		header(w, "insights_cache_hits_total", "counter", "Report cache hits.")
		for _, n := range names {
			sample(w, "insights_cache_hits_total", cacheLabel(n), stats[n].Hits)
		}
		header(w, "insights_cache_misses_total", "counter", "Report cache misses.")
		for _, n := range names {
			sample(w, "insights_cache_misses_total", cacheLabel(n), stats[n].Misses)
		}
		header(w, "insights_cache_evictions_total", "counter", "Entries evicted to respect the size bound.")
		for _, n := range names {
			sample(w, "insights_cache_evictions_total", cacheLabel(n), stats[n].Evictions)
		}
		header(w, "insights_cache_stale_writes_total", "counter", "Results dropped because the user was invalidated while computing.")
		for _, n := range names {
			sample(w, "insights_cache_stale_writes_total", cacheLabel(n), stats[n].Stale)
		}
		header(w, "insights_cache_hit_ratio", "gauge", "Hits over lookups since start.")
		for _, n := range names {
			sample(w, "insights_cache_hit_ratio", cacheLabel(n), stats[n].HitRatio())
		}
	}

	metric(w, "insights_uptime_seconds", "gauge", "Seconds since the server was built.", time.Since(s.started).Seconds())
}

func cacheLabel(name string) string {
	return fmt.Sprintf(`{cache=%q}`, name)
}

func metric(w io.Writer, name, typ, help string, value any) {
	header(w, name, typ, help)
	sample(w, name, "", value)
}

func header(w io.Writer, name, typ, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, typ)
}

func sample(w io.Writer, name, labels string, value any) {
	switch v := value.(type) {
	case float64:
		fmt.Fprintf(w, "%s%s %g\n", name, labels, v)
	default:
		fmt.Fprintf(w, "%s%s %d\n", name, labels, v)
	}
}
