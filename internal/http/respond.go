package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"auxparty/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps the domain error taxonomy to HTTP statuses. Unknown errors
// become opaque 500s; the detail stays in the log.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		status, message = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, core.ErrForbidden):
		status, message = http.StatusForbidden, "forbidden"
	case errors.Is(err, core.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, core.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrUpstreamProvider):
		status, message = http.StatusBadGateway, "music provider unavailable"
	case errors.Is(err, core.ErrOracle):
		status, message = http.StatusBadGateway, "playlist generation unavailable"
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: message})
}

func decodeBody(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return core.ErrValidation
	}
	return nil
}
