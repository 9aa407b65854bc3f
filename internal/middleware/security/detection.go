package security

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync/atomic"
	"unicode"

	"insights/internal/log"
)

// Limits on what a legitimate report request looks like.
const (
	maxURLLength     = 2048
	maxForwardedHops = 6
	maxUserIDLength  = 128
	maxFilterItems   = 200
)

// Verdict reasons.
const (
	ReasonProbePath   = "probe_path"
	ReasonScanner     = "scanner_agent"
	ReasonMethod      = "unusual_method"
	ReasonOversized   = "oversized_url"
	ReasonProxyChain  = "long_proxy_chain"
	ReasonUserHeader  = "malformed_user_header"
	ReasonFilterFlood = "filter_flood"
)

type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// Detector flags probe-like traffic and resolves the client address behind
// trusted proxies.
type Detector struct {
	suspicious atomic.Int64
	invalidIPs atomic.Int64
	trusted    []netip.Prefix
	userHeader string
}

// NewDetector trusts loopback and private ranges as proxies. userHeader names
// the header carrying the caller id; empty disables that check.
func NewDetector(userHeader string) *Detector {
	d := &Detector{userHeader: userHeader}
	for _, p := range []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"} {
		d.trusted = append(d.trusted, netip.MustParsePrefix(p))
	}
	return d
}

var (
	probeFragments = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		".php", ".git", ".ssh", "eval(", "javascript:",
		"<script", "union select", "etc/passwd", "cmd.exe",
	}
	scannerAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab", "scanner",
	}
	unusualMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}
	filterParams   = []string{"accounts", "categories"}
)

// Inspect returns the first reason r looks like a probe, or "" when it looks
// like an ordinary report call. It never blocks.
func (d *Detector) Inspect(r *http.Request) string {
	switch {
	case slices.Contains(unusualMethods, r.Method):
		return ReasonMethod
	case len(r.URL.String()) > maxURLLength:
		return ReasonOversized
	case containsAny(strings.ToLower(r.URL.Path), probeFragments),
		containsAny(strings.ToLower(r.URL.RawQuery), probeFragments):
		return ReasonProbePath
	case containsAny(strings.ToLower(r.UserAgent()), scannerAgents):
		return ReasonScanner
	case strings.Count(r.Header.Get("X-Forwarded-For"), ",") >= maxForwardedHops:
		return ReasonProxyChain
	case d.userHeader != "" && !plausibleUserID(r.Header.Get(d.userHeader)):
		return ReasonUserHeader
	case filterFlood(r):
		return ReasonFilterFlood
	}
	return ""
}

// DetectSuspiciousRequest reports whether Inspect found anything and counts it.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	if d.Inspect(r) == "" {
		return false
	}
	d.suspicious.Add(1)
	return true
}

// Middleware logs suspicious requests and passes every request on.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := d.Inspect(r); reason != "" {
			d.suspicious.Add(1)
			slog.WarnContext(r.Context(), "Suspicious request",
				log.FieldComponent, log.ComponentSecurity,
				"reason", reason,
				"client_ip", d.ExtractClientIP(r),
				"method", r.Method,
				"path", r.URL.Path,
				"user_agent", r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

func plausibleUserID(id string) bool {
	if len(id) > maxUserIDLength {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return unicode.IsControl(r) || r == '/' || r == '\\'
	})
}

func filterFlood(r *http.Request) bool {
	q := r.URL.Query()
	for _, name := range filterParams {
		n := 0
		for _, v := range q[name] {
			n += strings.Count(v, ",") + 1
		}
		if n > maxFilterItems {
			return true
		}
	}
	return false
}

func containsAny(s string, fragments []string) bool {
	return slices.ContainsFunc(fragments, func(f string) bool {
		return strings.Contains(s, f)
	})
}

// ExtractClientIP returns the peer address, or the first forwarded address
// when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !d.isTrustedProxy(peer) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if _, err := netip.ParseAddr(first); err == nil {
			return first
		}
		d.invalidIPs.Add(1)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return host
}

func (d *Detector) isTrustedProxy(ip netip.Addr) bool {
	ip = ip.Unmap()
	return slices.ContainsFunc(d.trusted, func(p netip.Prefix) bool {
		return p.Contains(ip)
	})
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIPs.Load(),
	}
}

// AddTrustedProxy trusts another proxy range, e.g. a load balancer subnet.
func (d *Detector) AddTrustedProxy(cidr string) error {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trusted = append(d.trusted, p.Masked())
	return nil
}
