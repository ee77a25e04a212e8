package workflows

import (
	"encoding/json"
	"fmt"
	"strings"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/workflow"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/models"
	"github.com/chatflow/orchestrator/internal/tools"
)

const (
	defaultMaxConcurrentAgents = 3
	subAgentMetricName         = "chatflow_subagent_completions"
)

type runningAgent struct {
	task   *models.SubAgentTask
	future workflow.ChildWorkflowFuture
}

// subAgentScheduler holds the task list and the in-flight children. Running
// agents are kept in start order so selection is replay-deterministic.
type subAgentScheduler struct {
	tasks      []*models.SubAgentTask
	running    []runningAgent
	next       int
	dynamicSeq int
	results    []SubAgentResult
}

func (s *subAgentScheduler) enqueue(spec SubTaskSpec, id string) {
	s.tasks = append(s.tasks, &models.SubAgentTask{
		ID:          id,
		Task:        spec.Task,
		Description: spec.Description,
		Status:      models.StatusPending,
	})
}

func (s *subAgentScheduler) deploy(spec SubTaskSpec) {
	s.dynamicSeq++
	s.enqueue(spec, fmt.Sprintf("dynamic-sub-agent-%d", s.dynamicSeq))
}

func (s *subAgentScheduler) remove(id string) {
	for i, r := range s.running {
		if r.task.ID == id {
			s.running = append(s.running[:i:i], s.running[i+1:]...)
			return
		}
	}
}

func (s *subAgentScheduler) snapshot() []models.SubAgentTask {
	out := make([]models.SubAgentTask, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = *t
	}
	return out
}

func (s *subAgentScheduler) count(status string) int {
	n := 0
	for _, t := range s.tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

// SubAgentOrchestrationWorkflow fans sub-tasks out to readAgentWorkflow children,
// never running more than MaxConcurrentAgents at once. Tasks may be added while it
// runs with deploySubAgent. Children are drained in completion order.
func (w *Workflows) SubAgentOrchestrationWorkflow(ctx workflow.Context, in SubAgentInput) (*SubAgentOrchestrationResult, error) {
	logger := workflow.GetLogger(ctx)
	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID

	maxAgents := in.MaxConcurrentAgents
	if maxAgents <= 0 {
		maxAgents = defaultMaxConcurrentAgents
	}

	s := &subAgentScheduler{}
	for i, spec := range in.SubTasks {
		s.enqueue(spec, fmt.Sprintf("sub-agent-%d", i))
	}

	if err := workflow.SetQueryHandler(ctx, constants.QuerySubAgentTasks, func() ([]models.SubAgentTask, error) {
		return s.snapshot(), nil
	}); err != nil {
		return nil, err
	}

	deployCh := workflow.GetSignalChannel(ctx, constants.SignalDeploySubAgent)
	absorb := func() {
		for {
			var spec SubTaskSpec
			if !deployCh.ReceiveAsync(&spec) {
				return
			}
			s.deploy(spec)
			logger.Info("Sub-agent task deployed", "task", spec.Task)
		}
	}

	for {
		absorb()

		for len(s.running) < maxAgents && s.next < len(s.tasks) {
			task := s.tasks[s.next]
			s.next++
			task.Status = models.StatusRunning

			cctx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
				WorkflowID:        parentID + "/" + task.ID,
				TaskQueue:         constants.ResearchQueue,
				ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
			})
			future := workflow.ExecuteChildWorkflow(cctx, constants.ReadAgentWorkflow, ReadAgentInput{
				Task:        task.Task,
				Description: task.Description,
			})
			s.running = append(s.running, runningAgent{task: task, future: future})

			w.notify(ctx,
				fmt.Sprintf("Started sub-agent %s. Running: %d", task.ID, len(s.running)),
				"Orchestrating sub-agents", "🤖")
		}

		if len(s.running) == 0 && s.next >= len(s.tasks) {
			break
		}

		sel := workflow.NewSelector(ctx)
		for _, r := range s.running {
			r := r
			sel.AddFuture(r.future, func(f workflow.Future) {
				var result tools.Result
				outcome := models.StatusCompleted
				var recorded interface{}
				if err := f.Get(ctx, &result); err != nil {
					outcome = models.StatusFailed
					recorded = failureMessage(err)
					logger.Warn("Sub-agent failed", "id", r.task.ID, "error", err)
				} else {
					recorded = result
				}
				r.task.Status = outcome
				r.task.Result = resultText(recorded)
				s.remove(r.task.ID)
				s.results = append(s.results, SubAgentResult{ID: r.task.ID, Result: recorded})
				counter(ctx, subAgentMetricName, map[string]string{"outcome": outcome})

				w.notify(ctx,
					fmt.Sprintf("Sub-agent %s completed. Progress: %d/%d", r.task.ID, len(s.results), len(s.tasks)),
					"Processing sub-agent results", "📊")
			})
		}
		sel.AddReceive(deployCh, func(c workflow.ReceiveChannel, more bool) {
			var spec SubTaskSpec
			c.Receive(ctx, &spec)
			s.deploy(spec)
			logger.Info("Sub-agent task deployed", "task", spec.Task)
		})
		sel.Select(ctx)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return &SubAgentOrchestrationResult{
		PrimaryTask:        in.PrimaryTask,
		SubAgentResults:    s.results,
		ConsolidatedReport: consolidateReport(in.PrimaryTask, s.results),
		TotalAgents:        len(s.tasks),
		SuccessfulAgents:   s.count(models.StatusCompleted),
		FailedAgents:       s.count(models.StatusFailed),
	}, nil
}

// ReadAgentWorkflow is the sub-agent body: a single read_agent tool call.
func (w *Workflows) ReadAgentWorkflow(ctx workflow.Context, in ReadAgentInput) (tools.Result, error) {
	return w.tools.Execute(ctx, tools.ToolReadAgent, map[string]interface{}{
		"task":        in.Task,
		"description": in.Description,
	}, &tools.CallContext{
		WorkflowID:  workflow.GetInfo(ctx).WorkflowExecution.ID,
		CurrentTask: in.Task,
	})
}

func consolidateReport(primary string, results []SubAgentResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("Sub-agent %s: %s", r.ID, resultText(r.Result))
	}
	return "Consolidated Report for: " + primary + "\n\n" + strings.Join(parts, "\n\n")
}

func resultText(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
