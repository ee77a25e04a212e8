package activities

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/chatflow/orchestrator/internal/metrics"
	"github.com/chatflow/orchestrator/internal/policy"
	"github.com/chatflow/orchestrator/internal/tools"
	"github.com/chatflow/orchestrator/internal/tracing"
)

// ExecuteTool runs one tool call. It may be invoked more than once for the same
// logical step, so every branch tolerates a repeat of a call that already succeeded.
func (a *Activities) ExecuteTool(ctx context.Context, call tools.Call) (tools.Result, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Executing tool", "tool", call.Name)

	ctx, span := tracing.StartSpan(ctx, "tool."+call.Name, attribute.String("tool.name", call.Name))
	defer span.End()

	start := time.Now()
	category := "unknown"
	if def, ok := a.registry.Get(call.Name); ok {
		category = string(def.Category)
	}

	result, err := a.executeTool(ctx, call)

	outcome := "success"
	if err != nil {
		outcome = "error"
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == tools.ErrTypePolicyDenied {
			outcome = "denied"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("Tool execution failed", "tool", call.Name, "error", err)
	}
	metrics.ToolExecutions.WithLabelValues(call.Name, category, outcome).Inc()
	metrics.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	return result, err
}

func (a *Activities) executeTool(ctx context.Context, call tools.Call) (tools.Result, error) {
	def, known := a.registry.Get(call.Name)
	if !known {
		return nil, nonRetryable(tools.ErrTypeUnsupported, "Unsupported tool: %s", call.Name)
	}
	params, err := tools.Decode(call.Name, call.Parameters)
	if err != nil {
		return nil, nonRetryable(tools.ErrTypeInvalidParameters, "%s", err.Error())
	}
	if err := a.checkPolicy(ctx, def, call); err != nil {
		return nil, err
	}

	switch p := params.(type) {
	case *tools.LsParams:
		return a.ls(p)
	case *tools.ReadParams:
		return a.read(p)
	case *tools.WriteParams:
		return a.write(p)
	case *tools.EditParams:
		return a.edit(p)
	case *tools.SearchParams:
		if call.Name == tools.ToolGlob {
			return a.glob(p)
		}
		return a.grep(p)
	case *tools.BashRunParams:
		return a.bashRun(ctx, p)
	case *tools.BashCommandCheckParams:
		return a.commands.Check(p.CommandID), nil
	case *tools.MessageUpdateParams:
		return a.messageUpdate(ctx, call, p)
	case *tools.TodoParams:
		return a.todo(ctx, call, p)
	case *tools.FollowUpsParams:
		return a.followUps(ctx, call, p)
	case *tools.HandoffParams:
		return a.handoff(ctx, call, p)
	case *tools.ReadAgentParams:
		return a.readAgent(ctx, p)
	case *tools.CodeTemplateParams:
		return codeTemplate(p), nil
	case *tools.URLParams:
		if call.Name == tools.ToolWebDownload {
			return a.webDownload(ctx, p)
		}
		return a.browserNavigate(ctx, p)
	}
	return a.providerTool(call.Name, call.Parameters)
}

// checkPolicy evaluates the tool's constraint flags. A denial is final.
func (a *Activities) checkPolicy(ctx context.Context, def tools.ToolDefinition, call tools.Call) error {
	if a.policy == nil || !a.policy.IsEnabled() {
		return nil
	}
	in := &policy.ToolInput{
		Tool:       call.Name,
		Paths:      paramPaths(call.Parameters),
		TokenLimit: a.cfg.TokenLimit,
		Params:     call.Parameters,
	}
	for _, c := range def.Constraints {
		in.Constraints = append(in.Constraints, string(c))
	}
	if call.Context != nil {
		in.UserID = call.Context.UserID
		in.WorkflowID = call.Context.WorkflowID
		in.TokenCount = call.Context.TokenCount
	}
	decision, err := a.policy.Evaluate(ctx, in)
	if err != nil {
		return retryable(tools.ErrTypeProviderUnavailable, err, "policy evaluation failed for %s", call.Name)
	}
	if !decision.Allow {
		return nonRetryable(tools.ErrTypePolicyDenied, "tool %s denied by policy: %s", call.Name, decision.Reason)
	}
	return nil
}

func paramPaths(params map[string]interface{}) []string {
	var out []string
	for _, key := range []string{"path", "file_path"} {
		if s, ok := params[key].(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
