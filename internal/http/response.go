package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"insights/internal/core"
	"insights/internal/currency"
	"insights/internal/log"
)

// WriteJSON writes data as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// apiError is how a service error reaches the client and the logs.
type apiError struct {
	status  int
	kind    string
	message string
}

// classify maps service errors to a status code, a log error type and a
// client-safe message.
func classify(err error) apiError {
	switch {
	case errors.Is(err, currency.ErrMissingRate):
		return apiError{http.StatusUnprocessableEntity, log.ErrorTypeMissingRate, err.Error()}
	case errors.Is(err, core.ErrInvalidTransactionType),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidCurrency),
		errors.Is(err, core.ErrInvalidGranularity):
		return apiError{http.StatusBadRequest, log.ErrorTypeValidation, err.Error()}
	case errors.Is(err, currency.ErrRateSource):
		return apiError{http.StatusBadGateway, log.ErrorTypeUpstream, "exchange rate source unavailable"}
	case errors.Is(err, context.DeadlineExceeded):
		return apiError{http.StatusGatewayTimeout, log.ErrorTypeTimeout, "request timed out"}
	default:
		return apiError{http.StatusInternalServerError, log.ErrorTypeInternal, "internal error"}
	}
}
