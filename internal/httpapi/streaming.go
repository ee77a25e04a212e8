package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/streaming"
)

// eventFilter parses the optional comma-separated types parameter.
func eventFilter(r *http.Request) map[string]struct{} {
	filter := map[string]struct{}{}
	if s := r.URL.Query().Get("types"); s != "" {
		for _, t := range strings.Split(s, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				filter[t] = struct{}{}
			}
		}
	}
	return filter
}

func wanted(filter map[string]struct{}, e streaming.Event) bool {
	if len(filter) == 0 {
		return true
	}
	_, ok := filter[e.Type]
	return ok
}

// tail starts streaming events for workflowID into the returned channel until ctx is done.
func (s *Server) tail(ctx context.Context, workflowID, lastID string) <-chan streaming.Event {
	ch := make(chan streaming.Event, 64)
	go func() {
		if err := s.events.Tail(ctx, workflowID, lastID, ch); err != nil {
			s.logger.Warn("Event tail stopped", zap.String("workflow_id", workflowID), zap.Error(err))
		}
		close(ch)
	}()
	return ch
}

// handleSSE streams a workflow's notifications as Server-Sent Events.
// GET /api/events/sse?workflowId=<id>[&types=a,b]; Last-Event-ID resumes.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	wf := r.URL.Query().Get("workflowId")
	if wf == "" {
		badRequest(w, "Missing workflowId")
		return
	}
	if s.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "event stream disabled", Code: "unavailable"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported", Code: "internal"})
		return
	}
	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = r.URL.Query().Get("lastEventId")
	}
	filter := eventFilter(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.tail(r.Context(), wf, lastID) {
		if !wanted(filter, ev) {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if ev.ID != "" {
			fmt.Fprintf(w, "id: %s\n", ev.ID)
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}
}
