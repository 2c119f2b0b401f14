package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/geohead/incidentdash/filter"
	"github.com/geohead/incidentdash/incident"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error codes.
const (
	CodeDataUnavailable    = "DATA_UNAVAILABLE"
	CodeInvalidFilterValue = "INVALID_FILTER_VALUE"
	CodeInvalidDateRange   = "INVALID_DATE_RANGE"
	CodeUnknownFilter      = "UNKNOWN_FILTER"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeSessionLimit       = "SESSION_LIMIT"
	CodeChartNotFound      = "CHART_NOT_FOUND"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

func newAPIError(status int, code, message string, details any) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Message: message, Details: details}
}

// toAPIError maps domain errors onto their HTTP form.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, filter.ErrInvalidFilterValue):
		return newAPIError(http.StatusBadRequest, CodeInvalidFilterValue, "value is not offered for this filter", err.Error())
	case errors.Is(err, filter.ErrInvalidDateRange):
		return newAPIError(http.StatusBadRequest, CodeInvalidDateRange, "invalid date range", err.Error())
	case errors.Is(err, filter.ErrUnknownFilter):
		return newAPIError(http.StatusNotFound, CodeUnknownFilter, "unknown filter", err.Error())
	case errors.Is(err, errSessionNotFound):
		return newAPIError(http.StatusNotFound, CodeSessionNotFound, "session not found", nil)
	case errors.Is(err, errSessionLimit):
		return newAPIError(http.StatusServiceUnavailable, CodeSessionLimit, "too many open sessions", nil)
	case errors.Is(err, incident.ErrDataUnavailable):
		return newAPIError(http.StatusServiceUnavailable, CodeDataUnavailable, "dataset unavailable", err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	level := slog.LevelWarn
	if apiErr.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error_code", apiErr.ErrorCode),
		slog.String("error", err.Error()),
	)
	render.Render(w, r, apiErr)
}
