package http

import (
	"context"
	"net/http"

	"insights/internal/core"
	"insights/internal/log"
	"insights/internal/services"
)

// ReportService is the part of services.ReportService the API serves.
type ReportService interface {
	GetCategoryReport(ctx context.Context, userID string, q services.CategoryReportQuery) (core.CategoryReport, error)
	GetBudget(ctx context.Context, userID string, q services.BudgetQuery) (core.BudgetReport, error)
}

// ReadinessChecker reports whether the ledger source can serve reads.
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleCategoryReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(r, s.defaultUser)

	q, err := ParseCategoryReportQuery(r.URL.Query())
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.reports.GetCategoryReport(ctx, userID, q)
	if err != nil {
		s.fail(w, r, err, log.OpGetCategoryReport, log.NewFields().WithReport(userID, string(q.Type), string(q.Granularity), q.Currency))
		return
	}

	s.logger.LogReportServed(ctx, log.OpGetCategoryReport,
		log.NewFields().WithReport(userID, string(q.Type), string(q.Granularity), q.Currency), len(report.Categories))
	WriteJSON(w, http.StatusOK, report)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(r, s.defaultUser)

	q, err := ParseBudgetQuery(r.URL.Query())
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.reports.GetBudget(ctx, userID, q)
	if err != nil {
		s.fail(w, r, err, log.OpGetBudget, log.NewFields().WithReport(userID, "", string(q.Granularity), q.Currency))
		return
	}

	s.logger.LogReportServed(ctx, log.OpGetBudget,
		log.NewFields().
			WithReport(userID, "", string(report.Granularity), report.Currency).
			WithWindow(report.From.String(), report.Until.String()),
		len(report.Entries))
	WriteJSON(w, http.StatusOK, report)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, op string, fields log.LogFields) {
	e := classify(err)
	fields = fields.WithErrorType(e.kind)
	switch {
	case e.status >= http.StatusInternalServerError:
		s.logger.LogError(r.Context(), "Report request failed", err, log.ComponentReports, op, fields)
	case e.status == http.StatusUnprocessableEntity:
		s.logger.LogRejected(r.Context(), "Report cannot be converted", err, op, fields)
	}
	WriteError(w, e.status, e.message)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			s.logger.LogError(r.Context(), "Readiness check failed", err, log.ComponentBackend, log.OpReady, nil)
			WriteError(w, http.StatusServiceUnavailable, "ledger source unavailable")
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
