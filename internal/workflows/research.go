package workflows

import (
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/tools"
)

// Tool names accepted by ToolInvocationWorkflow.
const (
	InvokeWebSearch        = "web_search"
	InvokeImageGeneration  = "image_generation"
	InvokeDocumentAnalysis = "document_analysis"
	InvokeCodeExecution    = "code_execution"
)

const (
	defaultResearchDepth = 3
	defaultMaxFollowUps  = 3
)

var invocationActivities = map[string]string{
	InvokeWebSearch:        constants.ExecuteWebSearchActivity,
	InvokeImageGeneration:  constants.GenerateImageActivity,
	InvokeDocumentAnalysis: constants.AnalyzeDocumentActivity,
	InvokeCodeExecution:    constants.ExecuteCodeActivity,
}

func researchActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: tools.NonRetryableErrorTypes,
		},
	}
}

// ToolInvocationWorkflow runs one research activity selected by tool name.
func (w *Workflows) ToolInvocationWorkflow(ctx workflow.Context, in ToolInvocationInput) (map[string]interface{}, error) {
	activityName, ok := invocationActivities[in.ToolName]
	if !ok {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("Unknown tool: %s", in.ToolName), tools.ErrTypeUnknownTool, nil)
	}
	params := in.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}

	actx := workflow.WithActivityOptions(ctx, researchActivityOptions())
	var result map[string]interface{}
	if err := workflow.ExecuteActivity(actx, activityName, params).Get(ctx, &result); err != nil {
		workflow.GetLogger(ctx).Error("Tool invocation failed", "tool", in.ToolName, "error", err)
		return nil, err
	}
	return result, nil
}

// DeepResearchWorkflow searches and analyzes a query in parallel, then recurses
// into the follow-up queries the search suggests until MaxDepth.
func (w *Workflows) DeepResearchWorkflow(ctx workflow.Context, in DeepResearchInput) (*DeepResearchResult, error) {
	maxDepth := in.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultResearchDepth
	}
	maxFollowUps := in.MaxFollowUps
	if maxFollowUps <= 0 {
		maxFollowUps = defaultMaxFollowUps
	}
	out := &DeepResearchResult{Query: in.Query, Depth: in.CurrentDepth, Results: []interface{}{}}
	if in.CurrentDepth >= maxDepth {
		return out, nil
	}

	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID
	child := func(id string) workflow.Context {
		return workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID:        id,
			TaskQueue:         constants.ResearchQueue,
			ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
		})
	}

	searchF := workflow.ExecuteChildWorkflow(child(fmt.Sprintf("%s/search-%d", parentID, in.CurrentDepth)),
		constants.ToolInvocationWorkflow, ToolInvocationInput{
			ToolName:   InvokeWebSearch,
			Parameters: map[string]interface{}{"q": in.Query},
		})
	analysisF := workflow.ExecuteChildWorkflow(child(fmt.Sprintf("%s/analysis-%d", parentID, in.CurrentDepth)),
		constants.ToolInvocationWorkflow, ToolInvocationInput{
			ToolName:   InvokeDocumentAnalysis,
			Parameters: map[string]interface{}{"query": in.Query},
		})

	var search, analysis map[string]interface{}
	if err := searchF.Get(ctx, &search); err != nil {
		return nil, fmt.Errorf("search %q: %w", in.Query, err)
	}
	if err := analysisF.Get(ctx, &analysis); err != nil {
		return nil, fmt.Errorf("analysis %q: %w", in.Query, err)
	}
	out.Results = append(out.Results, search, analysis)

	followUps := followUpQueries(search, maxFollowUps)
	futures := make([]workflow.ChildWorkflowFuture, len(followUps))
	for i, q := range followUps {
		futures[i] = workflow.ExecuteChildWorkflow(child(fmt.Sprintf("%s/deep-%d", parentID, i)),
			constants.DeepResearchWorkflow, DeepResearchInput{
				Query:        q,
				MaxDepth:     maxDepth,
				CurrentDepth: in.CurrentDepth + 1,
				MaxFollowUps: maxFollowUps,
			})
	}
	for i, f := range futures {
		var deeper DeepResearchResult
		if err := f.Get(ctx, &deeper); err != nil {
			workflow.GetLogger(ctx).Warn("Follow-up research failed", "query", followUps[i], "error", err)
			continue
		}
		out.Results = append(out.Results, deeper)
	}
	return out, nil
}

// followUpQueries reads follow_up_queries or related_queries off a search
// result, skipping blanks and duplicates.
func followUpQueries(search map[string]interface{}, limit int) []string {
	var out []string
	seen := map[string]bool{}
	for _, key := range []string{"follow_up_queries", "related_queries"} {
		list, _ := search[key].([]interface{})
		for _, v := range list {
			q, _ := v.(string)
			if q == "" || seen[q] {
				continue
			}
			seen[q] = true
			out = append(out, q)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}
