package apiServer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/i5heu/ouroboros-blocks/pkg/ownership"
)

func writeJSON(w http.ResponseWriter, status int, payload any) { // A
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

// writeError maps protocol errors to status codes. Only 400 answers carry
// the error text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) { // A
	status := statusFor(err)
	msg := http.StatusText(status)
	switch status {
	case http.StatusBadRequest:
		msg = err.Error()
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func statusFor(err error) int { // A
	var maxBytes *http.MaxBytesError
	switch {
	// Storage failures may wrap decode errors of stored data.
	case errors.Is(err, ownership.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ownership.ErrMalformedInput),
		errors.Is(err, ownership.ErrPayloadTooLarge),
		errors.As(err, &maxBytes):
		return http.StatusBadRequest
	case errors.Is(err, ownership.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ownership.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeRequest(r *http.Request) (Request, error) { // A
	var req Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return Request{}, err
		}
		return Request{}, errors.Join(ownership.ErrMalformedInput, err)
	}
	return req, nil
}

func WithLogger(logger *slog.Logger) Option { // A
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithMaxBodyBytes overrides the request body limit derived from the
// service's block size.
func WithMaxBodyBytes(n int64) Option { // A
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}
