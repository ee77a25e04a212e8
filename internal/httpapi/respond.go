package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/temporal"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "bad_request"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON")
		return false
	}
	return true
}

// statusFor maps client-layer outcomes onto HTTP. Unavailable and not-running
// share 503 and are told apart by code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, temporal.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, temporal.ErrAlreadyStarted):
		return http.StatusConflict, "already_started"
	case errors.Is(err, temporal.ErrDeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded"
	case errors.Is(err, temporal.ErrNotRunning):
		return http.StatusServiceUnavailable, "not_running"
	case errors.Is(err, temporal.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

var statusMessages = map[string]string{
	"not_found":         "workflow not found",
	"already_started":   "workflow already started",
	"deadline_exceeded": "workflow service did not answer in time",
	"not_running":       "workflow is not running",
	"unavailable":       "workflow service unavailable",
	"internal":          "internal error",
}

func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Workflow call failed", zap.String("op", op), zap.Error(err))
	} else {
		s.logger.Warn("Workflow call rejected", zap.String("op", op), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: statusMessages[code], Code: code})
}
