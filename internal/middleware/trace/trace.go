// Package trace stamps every request with an id and logs its outcome.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"insights/internal/log"
)

type ContextKey string

const RequestIDKey ContextKey = "request_id"

// HeaderRequestID is read from the request when present and always echoed
// on the response.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 64

// Options tell the middleware how to identify the caller; nil funcs leave
// the matching log field empty.
type Options struct {
	ClientIP func(*http.Request) string
	UserID   func(*http.Request) string
}

type Middleware struct {
	opts   Options
	logger *log.StructuredLogger

	requests     atomic.Int64
	clientErrors atomic.Int64
	serverErrors atomic.Int64
	lastLatency  atomic.Int64
}

// Metrics counts finished requests by status class.
type Metrics struct {
	Requests     int64
	ClientErrors int64
	ServerErrors int64
	LastLatency  time.Duration
}

func NewMiddleware(logger *log.Logger, opts Options) *Middleware {
	return &Middleware{opts: opts, logger: log.NewStructuredLogger(logger)}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = log.WithContext(ctx, log.FromContext(ctx).With(log.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		m.record(rec.status, elapsed)
		m.logger.LogHTTPEnd(ctx, r, log.HTTPOutcome{
			RequestID: requestID,
			Status:    rec.status,
			Duration:  elapsed,
			Bytes:     rec.bytes,
			ClientIP:  call(m.opts.ClientIP, r),
			UserID:    call(m.opts.UserID, r),
		})
	})
}

func (m *Middleware) record(status int, elapsed time.Duration) {
	m.requests.Add(1)
	switch {
	case status >= 500:
		m.serverErrors.Add(1)
	case status >= 400:
		m.clientErrors.Add(1)
	}
	m.lastLatency.Store(int64(elapsed))
}

func call(f func(*http.Request) string, r *http.Request) string {
	if f == nil {
		return ""
	}
	return f(r)
}

// recorder captures the status and body size written by the handler.
type recorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (rec *recorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.status = code
		rec.wroteHeader = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	rec.wroteHeader = true
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		Requests:     m.requests.Load(),
		ClientErrors: m.clientErrors.Load(),
		ServerErrors: m.serverErrors.Load(),
		LastLatency:  time.Duration(m.lastLatency.Load()),
	}
}
