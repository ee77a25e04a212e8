package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/streaming"
)

type ingestEvent struct {
	WorkflowID string                 `json:"workflow_id"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  string                 `json:"timestamp,omitempty"`
}

// handlePublish lets processes outside the worker push notifications onto a
// workflow's stream. Accepts one event or an array; incomplete events are skipped.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "event stream disabled", Code: "unavailable"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		badRequest(w, "invalid body")
		return
	}
	var single ingestEvent
	var batch []ingestEvent
	if err := json.Unmarshal(body, &single); err == nil && single.WorkflowID != "" {
		batch = []ingestEvent{single}
	} else if err := json.Unmarshal(body, &batch); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	ids := make([]string, 0, len(batch))
	for _, e := range batch {
		if e.WorkflowID == "" || e.Type == "" {
			continue
		}
		ts := time.Now().UTC()
		if e.Timestamp != "" {
			if t, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
				ts = t
			}
		}
		id, err := s.events.Publish(r.Context(), streaming.Event{
			WorkflowID: e.WorkflowID,
			Type:       e.Type,
			Message:    e.Message,
			Data:       e.Data,
			Timestamp:  ts,
		})
		if err != nil {
			s.logger.Warn("Failed to publish ingested event", zap.String("workflow_id", e.WorkflowID), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "ids": ids})
}
