package workflows

import (
	"errors"
	"fmt"
	"strings"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/tools"
)

const (
	defaultMaxTokens   = 100000
	handoffRatio       = 0.8
	handoffMetricName  = "chatflow_handoffs"
	bashCheckSuffix    = "_check"
	defaultChainTask   = "Processing tool chain"
	chainProgressState = "Processing tool chain"
)

// approvalGate is the single approval the chain is currently blocked on.
type approvalGate struct {
	name     string
	seq      int
	resolved bool
	approved bool
}

type toolChainState struct {
	chain   []ChainEntry
	context ToolChainContext
	gate    *approvalGate
	nextSeq int
}

func (s *toolChainState) add(name string, params map[string]interface{}) {
	s.nextSeq++
	s.chain = append(s.chain, ChainEntry{Seq: s.nextSeq, Name: name, Params: params})
}

func (s *toolChainState) removeSeq(seq int) {
	for i, e := range s.chain {
		if e.Seq == seq {
			s.chain = append(s.chain[:i:i], s.chain[i+1:]...)
			return
		}
	}
}

// approve resolves the gate waiting on toolID. Signals for tools that are not
// waiting are ignored.
func (s *toolChainState) approve(a ToolApproval) {
	idx := -1
	for i, name := range s.context.ApprovalQueue {
		if name == a.ToolID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	s.context.ApprovalQueue = append(s.context.ApprovalQueue[:idx:idx], s.context.ApprovalQueue[idx+1:]...)
	if s.gate != nil && s.gate.name == a.ToolID && !s.gate.resolved {
		s.gate.resolved = true
		s.gate.approved = a.Approved
		if !a.Approved {
			s.removeSeq(s.gate.seq)
		}
	}
}

func (s *toolChainState) merge(p ContextPatch) {
	if p.TokenCount != nil && *p.TokenCount > s.context.TokenCount {
		s.context.TokenCount = *p.TokenCount
	}
	if p.CurrentTask != nil {
		s.context.CurrentTask = *p.CurrentTask
	}
	if p.UserSession != nil {
		s.context.UserSession = p.UserSession
	}
	if p.FileModifications != nil {
		s.context.FileModifications = append([]string(nil), p.FileModifications...)
	}
	if p.ToolResults != nil {
		s.context.ToolResults = make(map[string]interface{}, len(p.ToolResults))
		for k, v := range p.ToolResults {
			s.context.ToolResults[k] = v
		}
	}
}

func (s *toolChainState) snapshotChain() []ChainEntry {
	return append([]ChainEntry{}, s.chain...)
}

// ToolChainWorkflow runs a dynamically extensible sequence of tool calls. Tools that
// need approval wait for approveTool; a denied tool is dropped from the chain. Once the
// token count passes 80% of the budget the chain hands off and stops.
func (w *Workflows) ToolChainWorkflow(ctx workflow.Context, in ToolChainInput) (*ToolChainResult, error) {
	logger := workflow.GetLogger(ctx)
	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	task := in.InitialContext.Task
	if task == "" {
		task = defaultChainTask
	}
	st := &toolChainState{
		context: ToolChainContext{
			CurrentTask:       task,
			UserSession:       in.InitialContext.Session,
			FileModifications: []string{},
			ToolResults:       map[string]interface{}{},
			ApprovalQueue:     []string{},
		},
	}
	for _, e := range in.Chain {
		st.add(e.Name, e.Params)
	}

	if err := workflow.SetQueryHandler(ctx, constants.QueryToolChain, func() ([]ChainEntry, error) {
		return st.snapshotChain(), nil
	}); err != nil {
		return nil, err
	}
	if err := workflow.SetQueryHandler(ctx, constants.QueryCurrentContext, func() (ToolChainContext, error) {
		return st.context, nil
	}); err != nil {
		return nil, err
	}
	if err := workflow.SetQueryHandler(ctx, constants.QueryPendingApprovals, func() ([]string, error) {
		return append([]string{}, st.context.ApprovalQueue...), nil
	}); err != nil {
		return nil, err
	}

	addCh := workflow.GetSignalChannel(ctx, constants.SignalAddToolToChain)
	approveCh := workflow.GetSignalChannel(ctx, constants.SignalApproveTool)
	updateCh := workflow.GetSignalChannel(ctx, constants.SignalUpdateContext)
	workflow.Go(ctx, func(gctx workflow.Context) {
		for {
			sel := workflow.NewSelector(gctx)
			sel.AddReceive(addCh, func(c workflow.ReceiveChannel, more bool) {
				var e ChainEntry
				c.Receive(gctx, &e)
				st.add(e.Name, e.Params)
			})
			sel.AddReceive(approveCh, func(c workflow.ReceiveChannel, more bool) {
				var a ToolApproval
				c.Receive(gctx, &a)
				st.approve(a)
			})
			sel.AddReceive(updateCh, func(c workflow.ReceiveChannel, more bool) {
				var p ContextPatch
				c.Receive(gctx, &p)
				st.merge(p)
			})
			sel.Select(gctx)
		}
	})

	var results []ToolResult
	callCtx := func() *tools.CallContext {
		return &tools.CallContext{
			WorkflowID:  workflowID,
			UserID:      in.InitialContext.UserID,
			CurrentTask: st.context.CurrentTask,
			TokenCount:  st.context.TokenCount,
		}
	}

	for i := 0; i < len(st.chain); {
		entry := st.chain[i]

		if w.tools.RequiresApproval(entry.Name) {
			st.gate = &approvalGate{name: entry.Name, seq: entry.Seq}
			st.context.ApprovalQueue = append(st.context.ApprovalQueue, entry.Name)
			logger.Info("Waiting for tool approval", "tool", entry.Name, "seq", entry.Seq)
			if err := workflow.Await(ctx, func() bool { return st.gate.resolved }); err != nil {
				return nil, err
			}
			approved := st.gate.approved
			st.gate = nil
			if !approved {
				logger.Info("Tool denied, skipping", "tool", entry.Name)
				// The denied entry is gone, so index i already holds the next one.
				continue
			}
		}

		if float64(st.context.TokenCount) > handoffRatio*float64(maxTokens) {
			return w.chainHandoff(ctx, st, i, len(results), callCtx()), nil
		}

		params := entry.Params
		if entry.Name == tools.ToolBashRun {
			params = withCommandID(params, fmt.Sprintf("%s-%d", workflowID, entry.Seq))
		}

		result, err := w.tools.Execute(ctx, entry.Name, params, callCtx())
		switch {
		case err == nil:
			results = append(results, ToolResult{Tool: entry.Name, Result: result})
			st.context.ToolResults[entry.Name] = result
			st.context.TokenCount += tools.EstimateTokenUsage(entry.Name, params, result)
			if isFileMutation(entry.Name) {
				if f := filePathOf(params); f != "" {
					st.context.FileModifications = append(st.context.FileModifications, f)
				}
			}
		case entry.Name == tools.ToolBashRun && isTimeoutFailure(err):
			logger.Warn("bash_run timed out, checking command status", "error", err)
			check, cerr := w.tools.Execute(ctx, tools.ToolBashCommandCheck,
				map[string]interface{}{"command_id": params["command_id"]}, callCtx())
			if cerr != nil {
				results = append(results, ToolResult{Tool: entry.Name + bashCheckSuffix, Error: failureMessage(cerr)})
			} else {
				results = append(results, ToolResult{Tool: entry.Name + bashCheckSuffix, Result: check})
			}
		default:
			logger.Warn("Tool failed, continuing chain", "tool", entry.Name, "error", err)
			results = append(results, ToolResult{Tool: entry.Name, Error: failureMessage(err)})
		}

		w.notify(ctx,
			fmt.Sprintf("Completed %s. Progress: %d/%d", entry.Name, i+1, len(st.chain)),
			chainProgressState, "⚙️")
		i++
	}

	return &ToolChainResult{
		Results:          results,
		Context:          st.context,
		CompletedTools:   len(results),
		FinalTokenCount:  st.context.TokenCount,
		HandoffTriggered: false,
	}, nil
}

// chainHandoff hands the remaining work off and builds the early-exit result.
func (w *Workflows) chainHandoff(ctx workflow.Context, st *toolChainState, i, completed int, callCtx *tools.CallContext) *ToolChainResult {
	entry := st.chain[i]
	handoff := tools.HandoffParams{
		PrimaryRequest:    st.context.CurrentTask,
		Reason:            "Approaching token limit",
		KeyTopics:         fmt.Sprintf("Executed %d tools in chain", i),
		FilesAndResources: strings.Join(st.context.FileModifications, "\n"),
		ProblemSolving:    "Tool chain execution in progress",
		CurrentTask:       "Executing tool: " + entry.Name,
		NextStep:          fmt.Sprintf("Continue with remaining %d tools", len(st.chain)-i),
	}
	counter(ctx, handoffMetricName, map[string]string{"workflow": "tool_chain"})
	workflow.GetLogger(ctx).Info("Token budget nearly spent, handing off",
		"token_count", st.context.TokenCount, "remaining", len(st.chain)-i)

	res := &ToolChainResult{
		Context:          st.context,
		CompletedTools:   completed,
		FinalTokenCount:  st.context.TokenCount,
		HandoffTriggered: true,
		RemainingTools:   append([]ChainEntry{}, st.chain[i:]...),
	}
	if _, err := w.tools.Execute(ctx, tools.ToolHandoff, handoff.Map(), callCtx); err != nil {
		workflow.GetLogger(ctx).Error("Handoff tool failed", "error", err)
		res.HandoffError = failureMessage(err)
	}
	return res
}

func withCommandID(params map[string]interface{}, id string) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	if s, _ := out["command_id"].(string); s == "" {
		out["command_id"] = id
	}
	return out
}

func isFileMutation(name string) bool {
	return name == tools.ToolEdit || name == tools.ToolMultiEdit || name == tools.ToolWrite
}

func filePathOf(params map[string]interface{}) string {
	if s, _ := params["file_path"].(string); s != "" {
		return s
	}
	s, _ := params["path"].(string)
	return s
}

// isTimeoutFailure reports whether a tool failure was a timeout, either an
// activity timeout or a command the executor stopped at its deadline.
func isTimeoutFailure(err error) bool {
	if temporal.IsTimeoutError(err) {
		return true
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == tools.ErrTypeTimeout {
		return true
	}
	return strings.Contains(strings.ToLower(failureMessage(err)), "timeout")
}

// failureMessage unwraps activity errors to the application message.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}
