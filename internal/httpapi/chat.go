package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/models"
	"github.com/chatflow/orchestrator/internal/temporal"
	"github.com/chatflow/orchestrator/internal/workflows"
)

type startChatRequest struct {
	WorkflowID      string                  `json:"workflowId,omitempty"`
	InitialMessages []models.Message        `json:"initialMessages,omitempty"`
	ModelConfig     models.ModelConfig      `json:"modelConfig"`
	ToolInvocations []models.ToolInvocation `json:"toolInvocations,omitempty"`
}

// handleStartChat starts a chat workflow. A reused workflowId is 409.
func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	var req startChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ModelConfig = req.ModelConfig.WithProvider()
	if req.ModelConfig.Model == "" || req.ModelConfig.Provider == "" {
		badRequest(w, "Missing modelConfig")
		return
	}
	id := req.WorkflowID
	if id == "" {
		id = "chat-" + uuid.NewString()
	}
	in := workflows.ChatInput{
		Messages:        req.InitialMessages,
		Model:           req.ModelConfig,
		ToolInvocations: req.ToolInvocations,
	}
	if in.Messages == nil {
		in.Messages = []models.Message{}
	}

	h, err := s.engine.Start(r.Context(), constants.ChatWorkflow,
		temporal.StartOptions{ID: id, TaskQueue: constants.ChatQueue}, in)
	if err != nil {
		s.writeEngineError(w, "start chat", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"workflowId": h.ID(), "runId": h.RunID()})
}

type addMessageRequest struct {
	WorkflowID string         `json:"workflowId"`
	Message    models.Message `json:"message"`
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req addMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WorkflowID == "" || req.Message.Role == "" {
		badRequest(w, "Missing workflowId or message")
		return
	}
	if req.Message.Timestamp.IsZero() {
		req.Message.Timestamp = time.Now().UTC()
	}
	if err := s.engine.Handle(req.WorkflowID).Signal(r.Context(), constants.SignalAddMessage, req.Message); err != nil {
		s.writeEngineError(w, "add message", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type updateModelRequest struct {
	WorkflowID string             `json:"workflowId"`
	Model      models.ModelConfig `json:"model"`
}

func (s *Server) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	var req updateModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Model = req.Model.WithProvider()
	if req.WorkflowID == "" || req.Model.Model == "" {
		badRequest(w, "Missing workflowId or model")
		return
	}
	if err := s.engine.Handle(req.WorkflowID).Signal(r.Context(), constants.SignalUpdateModel, req.Model); err != nil {
		s.writeEngineError(w, "update model", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCurrentModel(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("workflowId")
	if id == "" {
		badRequest(w, "Missing workflowId")
		return
	}
	var model models.ModelConfig
	if err := s.engine.Handle(id).Query(r.Context(), constants.QueryCurrentModel, &model); err != nil {
		s.writeEngineError(w, "current model", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"model": model})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("workflowId")
	if id == "" {
		badRequest(w, "Missing workflowId")
		return
	}
	conversation := []models.Message{}
	if err := s.engine.Handle(id).Query(r.Context(), constants.QueryConversation, &conversation); err != nil {
		s.writeEngineError(w, "conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversation": conversation})
}
