package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/tools"
)

const (
	defaultWarningThreshold = 100000
	defaultForcedThreshold  = 120000
	contextPollInterval     = time.Minute
	defaultPhase            = "initialization"

	forcedHandoffReason    = "Forced handoff - reached token limit"
	proactiveHandoffReason = "Proactive handoff - approaching token limit"
)

type contextState struct {
	tokenCount int
	warning    int
	forced     int

	phase     string
	decisions []string
	files     []string
	errors    []ContextError

	requested bool
	force     bool
}

func (s *contextState) status() ContextStatus {
	st := ContextNormal
	switch {
	case s.tokenCount >= s.forced:
		st = ContextCritical
	case s.tokenCount >= s.warning:
		st = ContextWarning
	}
	return ContextStatus{
		TokenCount:       s.tokenCount,
		WarningThreshold: s.warning,
		ForcedThreshold:  s.forced,
		Status:           st,
	}
}

func (s *contextState) record(ctx workflow.Context, e ContextEntry) {
	switch e.Kind {
	case EntryDecision:
		s.decisions = append(s.decisions, e.Text)
	case EntryFile:
		s.files = append(s.files, e.Text)
	case EntryError:
		s.errors = append(s.errors, ContextError{Error: e.Text, Fix: e.Fix, Timestamp: workflow.Now(ctx)})
	case EntryPhase:
		s.phase = e.Text
	default:
		workflow.GetLogger(ctx).Warn("Ignoring context entry of unknown kind", "kind", e.Kind)
	}
}

func (s *contextState) done() bool {
	return s.requested || s.force || s.tokenCount >= s.forced
}

// handoffParams renders the accumulated context as the handoff tool's summary.
func (s *contextState) handoffParams(primary, reason string) tools.HandoffParams {
	topics := make([]string, len(s.decisions))
	for i, d := range s.decisions {
		topics[i] = "• " + d
	}
	files := make([]string, len(s.files))
	for i, f := range s.files {
		files[i] = fmt.Sprintf("• %s: Modified during %s", f, s.phase)
	}
	errs := make([]string, len(s.errors))
	for i, e := range s.errors {
		errs[i] = fmt.Sprintf("%s: %s → %s", e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"), e.Error, e.Fix)
	}
	return tools.HandoffParams{
		PrimaryRequest:    primary,
		Reason:            reason,
		KeyTopics:         strings.Join(topics, "\n"),
		FilesAndResources: strings.Join(files, "\n"),
		ProblemSolving:    strings.Join(s.decisions, "\n"),
		CurrentTask:       s.phase,
		NextStep:          "Continue with fresh context maintaining all state",
		ErrorsAndFixes:    strings.Join(errs, "\n"),
	}
}

// ContextManagementWorkflow watches token usage reported by contextWarning and
// hands off once the warning threshold is met, the forced threshold is reached
// or forceHandoff is signaled.
func (w *Workflows) ContextManagementWorkflow(ctx workflow.Context, in ContextManagementInput) (*ContextManagementResult, error) {
	logger := workflow.GetLogger(ctx)

	st := &contextState{
		warning:   in.WarningThreshold,
		forced:    in.ForcedThreshold,
		phase:     in.InitialContext.Phase,
		decisions: append([]string{}, in.InitialContext.KeyDecisions...),
		files:     append([]string{}, in.InitialContext.FileModifications...),
		errors:    append([]ContextError{}, in.InitialContext.Errors...),
	}
	if st.warning <= 0 {
		st.warning = defaultWarningThreshold
	}
	if st.forced <= 0 {
		st.forced = defaultForcedThreshold
	}
	if st.phase == "" {
		st.phase = defaultPhase
	}

	if err := workflow.SetQueryHandler(ctx, constants.QueryContextStatus, func() (ContextStatus, error) {
		return st.status(), nil
	}); err != nil {
		return nil, err
	}

	warningCh := workflow.GetSignalChannel(ctx, constants.SignalContextWarning)
	forceCh := workflow.GetSignalChannel(ctx, constants.SignalForceHandoff)
	entryCh := workflow.GetSignalChannel(ctx, constants.SignalRecordContextEntry)
	workflow.Go(ctx, func(gctx workflow.Context) {
		for {
			sel := workflow.NewSelector(gctx)
			sel.AddReceive(warningCh, func(c workflow.ReceiveChannel, more bool) {
				var tokens int
				c.Receive(gctx, &tokens)
				st.tokenCount = tokens
				if st.tokenCount >= st.warning {
					st.requested = true
				}
			})
			sel.AddReceive(forceCh, func(c workflow.ReceiveChannel, more bool) {
				c.Receive(gctx, nil)
				st.force = true
			})
			sel.AddReceive(entryCh, func(c workflow.ReceiveChannel, more bool) {
				var e ContextEntry
				c.Receive(gctx, &e)
				st.record(gctx, e)
			})
			sel.Select(gctx)
		}
	})

	for !st.done() {
		if _, err := workflow.AwaitWithTimeout(ctx, contextPollInterval, st.done); err != nil {
			return nil, err
		}
	}

	reason := proactiveHandoffReason
	if st.force || st.tokenCount >= st.forced {
		reason = forcedHandoffReason
	}
	primary := in.InitialContext.PrimaryRequest
	if primary == "" {
		primary = "Continue processing"
	}

	logger.Info("Context handoff", "reason", reason, "token_count", st.tokenCount)
	counter(ctx, handoffMetricName, map[string]string{"workflow": "context_management"})

	params := st.handoffParams(primary, reason)
	callCtx := &tools.CallContext{
		WorkflowID:  workflow.GetInfo(ctx).WorkflowExecution.ID,
		CurrentTask: st.phase,
		TokenCount:  st.tokenCount,
	}
	if _, err := w.tools.Execute(ctx, tools.ToolHandoff, params.Map(), callCtx); err != nil {
		return nil, fmt.Errorf("handoff failed: %w", err)
	}

	return &ContextManagementResult{
		HandoffExecuted: true,
		FinalTokenCount: st.tokenCount,
		HandoffReason:   reason,
		PreservedState: PreservedState{
			FileModifications: st.files,
			KeyDecisions:      st.decisions,
			Errors:            st.errors,
		},
	}, nil
}
