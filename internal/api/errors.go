package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
	"github.com/rshade/carbon-aware-sci/internal/sci"
	"github.com/rshade/carbon-aware-sci/internal/trace"
)

// problem is the JSON error body returned by every endpoint.
type problem struct {
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	RequestID string `json:"requestId"`
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case carbon.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, datasource.ErrNotFound):
		return http.StatusNotFound
	case sci.IsResolution(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, datasource.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := statusFor(err)
	traceID := trace.ID(r.Context())

	event := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.
		Str(trace.FieldTraceID, traceID).
		Str(trace.FieldOperation, operation).
		Int("status", status).
		Err(err).
		Msg("request failed")

	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "an internal error occurred"
	}
	s.writeJSON(w, r, status, problem{
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		RequestID: traceID,
	})
}
