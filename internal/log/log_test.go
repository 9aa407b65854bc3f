package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Component: component, Handler: NewTextHandler(&buf, slog.LevelDebug)}), &buf
}

func TestLoggerAddsComponent(t *testing.T) {
	logger, buf := newBufferLogger(ComponentReports)

	logger.Info("served", FieldUserID, "alice")
	logger.WithComponent(ComponentRates).Warn("slow")

	out := buf.String()
	if !strings.Contains(out, "component=reports") || !strings.Contains(out, "user_id=alice") {
		t.Errorf("missing report fields in %q", out)
	}
	if !strings.Contains(out, "component=rates") {
		t.Errorf("missing rates component in %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	logger, buf := newBufferLogger(ComponentApp)

	handler := Middleware(logger.With(FieldRequestID, "req-1"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).WithComponent(ComponentHTTP).InfoContext(r.Context(), "inside")
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/budget", nil))

	out := buf.String()
	if !strings.Contains(out, "request_id=req-1") || !strings.Contains(out, "component=http") {
		t.Errorf("unexpected log output %q", out)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil || logger.Component() != "unknown" {
		t.Fatalf("unexpected fallback logger %+v", logger)
	}
}

func TestStructuredLogger(t *testing.T) {
	logger, buf := newBufferLogger(ComponentApp)
	sl := NewStructuredLogger(logger)
	ctx := context.Background()

	sl.LogReportServed(ctx, OpGetBudget, NewFields().WithReport("alice", "", "yearly", "EUR").WithWindow("2024-01-01", "2024-12-31"), 3)
	sl.LogError(ctx, "Report failed", errors.New("list transactions: disk I/O error"), ComponentReports, OpGetCategoryReport, NewFields().WithErrorType(ErrorTypeInternal))
	sl.LogRejected(ctx, "Report cannot be converted", errors.New("missing exchange rate: CHF"), OpGetBudget, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/categories?type=expense", nil)
	sl.LogHTTPEnd(ctx, req, HTTPOutcome{RequestID: "req-9", Status: http.StatusUnprocessableEntity, Duration: 12 * time.Millisecond, Bytes: 40, ClientIP: "10.0.0.1", UserID: "alice"})

	out := buf.String()
	for _, want := range []string{
		"operation=get_budget", "rows=3", "from=2024-01-01", "granularity=yearly",
		"level=ERROR", `error="list transactions: disk I/O error"`, "error_type=internal_error",
		`error="missing exchange rate: CHF"`,
		"level=WARN", "status_code=422", "duration_ms=12", "bytes=40", "request_id=req-9", "user_id=alice",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "report_type=") {
		t.Errorf("empty report type should be omitted:\n%s", out)
	}
}

func TestNewHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Component: ComponentApp, Handler: NewHandler(&buf, slog.LevelInfo, " JSON ")}).Info("started", FieldUserID, "alice")
	if !strings.Contains(buf.String(), `"component":"app"`) || !strings.Contains(buf.String(), `"user_id":"alice"`) {
		t.Errorf("expected json output, got %q", buf.String())
	}

	buf.Reset()
	New(Config{Component: ComponentApp, Handler: NewHandler(&buf, slog.LevelWarn, "text")}).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
}
