package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type ContextKey string

const LoggerContextKey ContextKey = "logger"

// Middleware stores logger in every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), logger)))
		})
	}
}

func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext returns the request logger or one backed by slog.Default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger logs the recurring events of the report API.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// HTTPOutcome describes a finished request.
type HTTPOutcome struct {
	RequestID string
	Status    int
	Duration  time.Duration
	Bytes     int
	ClientIP  string
	UserID    string
}

// LogHTTPEnd logs a finished request at a level derived from its status:
// warn for client errors, error for server errors.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, out HTTPOutcome) {
	level := slog.LevelInfo
	switch {
	case out.Status >= 500:
		level = slog.LevelError
	case out.Status >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()).
		WithHTTPResponse(out.Status, out.Duration.Milliseconds(), out.Status < 400).
		WithClientIP(out.ClientIP).
		WithComponent(ComponentHTTP)
	fields[FieldBytes] = out.Bytes
	if out.RequestID != "" {
		fields = fields.WithRequestID(out.RequestID)
	}
	if out.UserID != "" {
		fields[FieldUserID] = out.UserID
	}

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogReportServed records a successful report with its window and size.
func (sl *StructuredLogger) LogReportServed(ctx context.Context, op string, fields LogFields, rows int) {
	fields = fields.WithOperation(op).WithComponent(ComponentReports)
	fields[FieldRows] = rows
	sl.logger.Logger.InfoContext(ctx, "Report served", fields.ToSlice()...)
}

// LogRejected logs a request the service refused for a reason the operator
// may need to act on, such as a currency without a rate.
func (sl *StructuredLogger) LogRejected(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields = fields.WithError(err).WithOperation(operation).WithComponent(ComponentReports)
	sl.logger.Logger.WarnContext(ctx, msg, fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.Logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
