package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/temporal"
	"github.com/chatflow/orchestrator/internal/workflows"
)

type startToolChainRequest struct {
	WorkflowID string `json:"workflowId,omitempty"`
	workflows.ToolChainInput
}

func (s *Server) handleStartToolChain(w http.ResponseWriter, r *http.Request) {
	var req startToolChainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for _, e := range req.Chain {
		if e.Name == "" {
			badRequest(w, "toolChain entries require a name")
			return
		}
	}
	id := req.WorkflowID
	if id == "" {
		id = "toolchain-" + uuid.NewString()
	}
	h, err := s.engine.Start(r.Context(), constants.ToolChainWorkflow,
		temporal.StartOptions{ID: id, TaskQueue: constants.ChatQueue}, req.ToolChainInput)
	if err != nil {
		s.writeEngineError(w, "start tool chain", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"workflowId": h.ID(), "runId": h.RunID()})
}

type addToolRequest struct {
	WorkflowID string               `json:"workflowId"`
	Tool       workflows.ChainEntry `json:"tool"`
}

func (s *Server) handleAddTool(w http.ResponseWriter, r *http.Request) {
	var req addToolRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WorkflowID == "" || req.Tool.Name == "" {
		badRequest(w, "Missing workflowId or tool.name")
		return
	}
	if err := s.engine.Handle(req.WorkflowID).Signal(r.Context(), constants.SignalAddToolToChain, req.Tool); err != nil {
		s.writeEngineError(w, "add tool", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type approveToolRequest struct {
	WorkflowID string `json:"workflowId"`
	workflows.ToolApproval
}

func (s *Server) handleApproveTool(w http.ResponseWriter, r *http.Request) {
	var req approveToolRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WorkflowID == "" || req.ToolID == "" {
		badRequest(w, "Missing workflowId or toolId")
		return
	}
	if err := s.engine.Handle(req.WorkflowID).Signal(r.Context(), constants.SignalApproveTool, req.ToolApproval); err != nil {
		s.writeEngineError(w, "approve tool", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleToolChainState returns the remaining chain, the working context and the open approval gates.
func (s *Server) handleToolChainState(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("workflowId")
	if id == "" {
		badRequest(w, "Missing workflowId")
		return
	}
	h := s.engine.Handle(id)
	var (
		chain   = []workflows.ChainEntry{}
		current workflows.ToolChainContext
		pending = []string{}
	)
	if err := h.Query(r.Context(), constants.QueryToolChain, &chain); err != nil {
		s.writeEngineError(w, "tool chain", err)
		return
	}
	if err := h.Query(r.Context(), constants.QueryCurrentContext, &current); err != nil {
		s.writeEngineError(w, "tool chain context", err)
		return
	}
	if err := h.Query(r.Context(), constants.QueryPendingApprovals, &pending); err != nil {
		s.writeEngineError(w, "tool chain approvals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"toolChain":        chain,
		"context":          current,
		"pendingApprovals": pending,
	})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("workflowId")
	if id == "" {
		badRequest(w, "Missing workflowId")
		return
	}
	desc, err := s.engine.Handle(id).Describe(r.Context())
	if err != nil {
		s.writeEngineError(w, "describe", err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}
