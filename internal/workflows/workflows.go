package workflows

import (
	"go.temporal.io/sdk/workflow"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/tools"
)

// Workflows holds what workflow code shares across instances: the read-only tool registry.
type Workflows struct {
	tools *tools.Registry
}

// New returns the workflow set bound to registry. A nil registry uses the built-in catalog.
func New(registry *tools.Registry) *Workflows {
	if registry == nil {
		registry = tools.NewDefaultRegistry()
	}
	return &Workflows{tools: registry}
}

// ByName maps registered workflow type names to their implementations.
func (w *Workflows) ByName() map[string]interface{} {
	return map[string]interface{}{
		constants.ChatWorkflow:                  w.ChatWorkflow,
		constants.ApprovalWorkflow:              w.ApprovalWorkflow,
		constants.ToolChainWorkflow:             w.ToolChainWorkflow,
		constants.ContextManagementWorkflow:     w.ContextManagementWorkflow,
		constants.SubAgentOrchestrationWorkflow: w.SubAgentOrchestrationWorkflow,
		constants.ReadAgentWorkflow:             w.ReadAgentWorkflow,
		constants.DeepResearchWorkflow:          w.DeepResearchWorkflow,
		constants.ToolInvocationWorkflow:        w.ToolInvocationWorkflow,
	}
}

// notify sends a progress message without blocking the caller. A failed
// notification is logged and otherwise ignored.
func (w *Workflows) notify(ctx workflow.Context, message, status, emoji string) {
	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID
	workflow.Go(ctx, func(gctx workflow.Context) {
		_, err := w.tools.Execute(gctx, tools.ToolMessageUpdate, map[string]interface{}{
			"message":      message,
			"status":       status,
			"status_emoji": emoji,
		}, &tools.CallContext{WorkflowID: workflowID})
		if err != nil {
			workflow.GetLogger(gctx).Debug("Progress notification dropped", "error", err)
		}
	})
}

func counter(ctx workflow.Context, name string, tags map[string]string) {
	workflow.GetMetricsHandler(ctx).WithTags(tags).Counter(name).Inc(1)
}
