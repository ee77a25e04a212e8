package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/models"
	"github.com/chatflow/orchestrator/internal/temporal"
	"github.com/chatflow/orchestrator/internal/workflows"
)

type approvalRequestBody struct {
	ApprovalWorkflowID string                 `json:"approvalWorkflowId,omitempty"`
	Request            models.ApprovalRequest `json:"request"`
}

// handleRequestApproval signals an open approval workflow, starting one with the
// current auto-approval rules when none is running under that id.
func (s *Server) handleRequestApproval(w http.ResponseWriter, r *http.Request) {
	var body approvalRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Request.ToolName == "" {
		badRequest(w, "Missing request.toolName")
		return
	}
	if body.Request.ID == "" {
		body.Request.ID = uuid.NewString()
	}
	id := body.ApprovalWorkflowID
	if id == "" {
		id = "approvals-" + uuid.NewString()
	}

	handle := s.engine.Handle(id)
	desc, err := handle.Describe(r.Context())
	switch {
	case errors.Is(err, temporal.ErrNotFound) || (err == nil && !desc.Running):
		if err := s.startApproval(r, id); err != nil {
			s.writeEngineError(w, "start approvals", err)
			return
		}
	case err != nil:
		s.writeEngineError(w, "describe approvals", err)
		return
	}

	if err := handle.Signal(r.Context(), constants.SignalRequestApproval, body.Request); err != nil {
		s.writeEngineError(w, "request approval", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                 true,
		"approvalWorkflowId": id,
		"requestId":          body.Request.ID,
	})
}

// startApproval tolerates losing a start race to a concurrent request.
func (s *Server) startApproval(r *http.Request, id string) error {
	in := workflows.ApprovalInput{
		PollInterval: s.approval.PollInterval,
		MaxHistory:   s.approval.MaxHistory,
	}
	if s.rules != nil {
		in.Rules = s.rules.Rules()
	}
	_, err := s.engine.Start(r.Context(), constants.ApprovalWorkflow,
		temporal.StartOptions{ID: id, TaskQueue: constants.BackgroundQueue}, in)
	if errors.Is(err, temporal.ErrAlreadyStarted) {
		return nil
	}
	if err == nil {
		s.logger.Info("Started approval workflow", zap.String("workflow_id", id), zap.Int("rules", len(in.Rules)))
	}
	return err
}

type approveBody struct {
	ApprovalWorkflowID string `json:"approvalWorkflowId"`
	RequestID          string `json:"requestId"`
	Approved           bool   `json:"approved"`
	Feedback           string `json:"feedback,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body approveBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ApprovalWorkflowID == "" || body.RequestID == "" {
		badRequest(w, "Missing parameters")
		return
	}
	decision := models.ApprovalDecision{RequestID: body.RequestID, Approved: body.Approved, Feedback: body.Feedback}
	if err := s.engine.Handle(body.ApprovalWorkflowID).Signal(r.Context(), constants.SignalApproveAction, decision); err != nil {
		s.writeEngineError(w, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("approvalWorkflowId")
	if id == "" {
		badRequest(w, "Missing approvalWorkflowId")
		return
	}
	pending := []models.ApprovalRequest{}
	if err := s.engine.Handle(id).Query(r.Context(), constants.QueryPendingApprovals, &pending); err != nil {
		s.writeEngineError(w, "pending approvals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pending": pending})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("approvalWorkflowId")
	if id == "" {
		badRequest(w, "Missing approvalWorkflowId")
		return
	}
	history := []models.ApprovalRecord{}
	if err := s.engine.Handle(id).Query(r.Context(), constants.QueryApprovalHistory, &history); err != nil {
		s.writeEngineError(w, "approval history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}
