package workflows

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/workflow"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/models"
	"github.com/chatflow/orchestrator/internal/tools"
)

const (
	defaultApprovalPoll = 30 * time.Second
	defaultEventsPerRun = 1000
	timedOutFeedback    = "Timed out - auto-processed based on risk level"
	approvalMetricName  = "chatflow_approval_decisions"
)

type approvalState struct {
	rules   []models.AutoApprovalRule
	pending []models.ApprovalRequest
	history []models.ApprovalRecord
	seen    map[string]bool
}

// ApprovalWorkflow queues approval requests for risky tool calls until a user
// decides, a rule auto-approves, or the request's timeout resolves it by risk level.
// It never completes on its own; long runs continue as new with their state.
func (w *Workflows) ApprovalWorkflow(ctx workflow.Context, in ApprovalInput) error {
	logger := workflow.GetLogger(ctx)

	poll := in.PollInterval
	if poll <= 0 {
		poll = defaultApprovalPoll
	}
	eventsPerRun := in.EventsPerRun
	if eventsPerRun <= 0 {
		eventsPerRun = defaultEventsPerRun
	}

	st := &approvalState{
		rules:   in.Rules,
		pending: append([]models.ApprovalRequest(nil), in.Pending...),
		history: append([]models.ApprovalRecord(nil), in.History...),
		seen:    make(map[string]bool),
	}
	for _, r := range st.pending {
		st.seen[r.ID] = true
	}
	for _, r := range st.history {
		st.seen[r.Request.ID] = true
	}

	if err := workflow.SetQueryHandler(ctx, constants.QueryPendingApprovals, func() ([]models.ApprovalRequest, error) {
		return append([]models.ApprovalRequest{}, st.pending...), nil
	}); err != nil {
		return err
	}
	if err := workflow.SetQueryHandler(ctx, constants.QueryApprovalHistory, func() ([]models.ApprovalRecord, error) {
		return append([]models.ApprovalRecord{}, st.history...), nil
	}); err != nil {
		return err
	}

	requestCh := workflow.GetSignalChannel(ctx, constants.SignalRequestApproval)
	decisionCh := workflow.GetSignalChannel(ctx, constants.SignalApproveAction)

	onRequest := func(c workflow.ReceiveChannel, more bool) {
		var req models.ApprovalRequest
		c.Receive(ctx, &req)
		w.handleApprovalRequest(ctx, st, req)
	}
	onDecision := func(c workflow.ReceiveChannel, more bool) {
		var d models.ApprovalDecision
		c.Receive(ctx, &d)
		handleApprovalDecision(ctx, st, d)
	}

	for events := 0; ; events++ {
		resolveExpired(ctx, st)

		if events >= eventsPerRun {
			// Absorb anything already delivered so it is not lost across the boundary.
			for {
				var req models.ApprovalRequest
				if !requestCh.ReceiveAsync(&req) {
					break
				}
				w.handleApprovalRequest(ctx, st, req)
			}
			for {
				var d models.ApprovalDecision
				if !decisionCh.ReceiveAsync(&d) {
					break
				}
				handleApprovalDecision(ctx, st, d)
			}
			next := in
			next.Pending = st.pending
			next.History = st.history
			if in.MaxHistory > 0 && len(next.History) > in.MaxHistory {
				next.History = next.History[len(next.History)-in.MaxHistory:]
			}
			logger.Info("Approval workflow continuing as new",
				"pending", len(next.Pending), "history", len(next.History))
			return workflow.NewContinueAsNewError(ctx, constants.ApprovalWorkflow, next)
		}

		wait := poll
		if d, ok := nextDeadline(ctx, st.pending); ok && d < wait {
			wait = d
		}
		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		sel := workflow.NewSelector(ctx)
		sel.AddReceive(requestCh, onRequest)
		sel.AddReceive(decisionCh, onDecision)
		sel.AddFuture(workflow.NewTimer(timerCtx, wait), func(workflow.Future) {})
		sel.Select(ctx)
		cancelTimer()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (w *Workflows) handleApprovalRequest(ctx workflow.Context, st *approvalState, req models.ApprovalRequest) {
	logger := workflow.GetLogger(ctx)
	if req.ID == "" {
		var id string
		_ = workflow.SideEffect(ctx, func(workflow.Context) interface{} {
			return uuid.NewString()
		}).Get(&id)
		req.ID = id
	}
	if st.seen[req.ID] {
		logger.Warn("Duplicate approval request ignored", "request_id", req.ID)
		return
	}
	st.seen[req.ID] = true
	if req.Timestamp.IsZero() {
		req.Timestamp = workflow.Now(ctx)
	}
	if req.RiskLevel == "" {
		req.RiskLevel = tools.AssessRiskLevel(req.ToolName, req.Parameters)
	}

	if _, ok := models.FirstMatch(st.rules, req.ToolName, req.Parameters); ok {
		st.history = append(st.history, models.ApprovalRecord{
			Request:      req,
			Approved:     true,
			ApprovedAt:   workflow.Now(ctx),
			AutoApproved: true,
		})
		counter(ctx, approvalMetricName, map[string]string{"outcome": "approved", "source": "rule"})
		logger.Info("Approval request auto-approved by rule", "request_id", req.ID, "tool", req.ToolName)
		return
	}

	st.pending = append(st.pending, req)
	logger.Info("Approval requested", "request_id", req.ID, "tool", req.ToolName, "risk", req.RiskLevel)
	w.notify(ctx,
		fmt.Sprintf("Approval required for %s. Risk: %s", req.ToolName, req.RiskLevel),
		"Waiting for user approval", "⏳")
}

// handleApprovalDecision resolves a pending request. Unknown or already resolved ids are ignored.
func handleApprovalDecision(ctx workflow.Context, st *approvalState, d models.ApprovalDecision) {
	for i, req := range st.pending {
		if req.ID != d.RequestID {
			continue
		}
		st.pending = append(st.pending[:i:i], st.pending[i+1:]...)
		st.history = append(st.history, models.ApprovalRecord{
			Request:      req,
			Approved:     d.Approved,
			UserFeedback: d.Feedback,
			ApprovedAt:   workflow.Now(ctx),
		})
		counter(ctx, approvalMetricName, map[string]string{"outcome": outcome(d.Approved), "source": "user"})
		workflow.GetLogger(ctx).Info("Approval resolved", "request_id", req.ID, "approved", d.Approved)
		return
	}
}

// resolveExpired settles requests older than their timeout: low risk is approved, anything else denied.
func resolveExpired(ctx workflow.Context, st *approvalState) {
	now := workflow.Now(ctx)
	kept := st.pending[:0:0]
	for _, req := range st.pending {
		if req.Timeout <= 0 || now.Sub(req.Timestamp) <= time.Duration(req.Timeout)*time.Second {
			kept = append(kept, req)
			continue
		}
		approved := req.RiskLevel == models.RiskLow
		st.history = append(st.history, models.ApprovalRecord{
			Request:      req,
			Approved:     approved,
			UserFeedback: timedOutFeedback,
			ApprovedAt:   now,
			AutoApproved: true,
		})
		counter(ctx, approvalMetricName, map[string]string{"outcome": outcome(approved), "source": "timeout"})
		workflow.GetLogger(ctx).Info("Approval timed out", "request_id", req.ID, "approved", approved)
	}
	st.pending = kept
}

// nextDeadline is the wait until the earliest pending request becomes overdue.
func nextDeadline(ctx workflow.Context, pending []models.ApprovalRequest) (time.Duration, bool) {
	now := workflow.Now(ctx)
	var best time.Duration
	found := false
	for _, req := range pending {
		if req.Timeout <= 0 {
			continue
		}
		d := req.Timestamp.Add(time.Duration(req.Timeout)*time.Second).Sub(now) + time.Millisecond
		if d < time.Millisecond {
			d = time.Millisecond
		}
		if !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}

func outcome(approved bool) string {
	if approved {
		return "approved"
	}
	return "denied"
}
