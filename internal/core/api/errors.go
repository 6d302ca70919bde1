package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/solatis/segmentkeeper/internal/types"
)

// Error mapping is done here for handlers; auth errors are mapped in the
// auth package middleware.
// Validation errors map to 400.
// Missing segments map to 404.
// Database errors map to 503.
// Context timeouts map to 504.
// Anything else is the fallback the handler passes in.

var invalidInput = []error{
	types.ErrInvalidSegment,
	types.ErrEmptyFilter,
	types.ErrUnknownField,
	types.ErrInvalidOperator,
	types.ErrInvalidLogic,
	types.ErrCoercionFailed,
	types.ErrTooManyConditions,
	types.ErrTooManyGroups,
	types.ErrTooManyInValues,
}

func statusFor(err error, fallback int) int {
	for _, target := range invalidInput {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, types.ErrSegmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return fallback
	}
}

// decodeBody reads the whole body first so an oversized body surfaces as
// *http.MaxBytesError rather than a parse error.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Service) authFailed(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.writeError(w, r, status, err)
}
