package registry

import (
	"fmt"
	"sort"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/activities"
	"github.com/chatflow/orchestrator/internal/config"
	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/workflows"
)

// QueueWorkflows routes workflow types to the task queue whose workers run them.
// Child workflows are started on the research queue.
var QueueWorkflows = map[string][]string{
	constants.ChatQueue: {
		constants.ChatWorkflow,
		constants.ToolChainWorkflow,
		constants.ContextManagementWorkflow,
		constants.SubAgentOrchestrationWorkflow,
	},
	constants.ToolQueue: {
		constants.ToolInvocationWorkflow,
	},
	constants.ResearchQueue: {
		constants.ReadAgentWorkflow,
		constants.DeepResearchWorkflow,
		constants.ToolInvocationWorkflow,
	},
	constants.BackgroundQueue: {
		constants.ApprovalWorkflow,
	},
}

// ChatflowRegistry registers workflows and activities per task queue. Activities
// run on the queue of the workflow that schedules them, so every queue gets all of them.
type ChatflowRegistry struct {
	workflows  *workflows.Workflows
	activities *activities.Activities
	logger     *zap.Logger
}

func NewChatflowRegistry(wf *workflows.Workflows, acts *activities.Activities, logger *zap.Logger) *ChatflowRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatflowRegistry{workflows: wf, activities: acts, logger: logger}
}

// RegisterWorkflows registers the workflows routed to queue.
func (r *ChatflowRegistry) RegisterWorkflows(queue string, reg Registrar) error {
	names, ok := QueueWorkflows[queue]
	if !ok {
		return fmt.Errorf("unknown task queue %q", queue)
	}
	all := r.workflows.ByName()
	for _, name := range names {
		fn, ok := all[name]
		if !ok {
			return fmt.Errorf("workflow %q has no implementation", name)
		}
		reg.RegisterWorkflowWithOptions(fn, workflow.RegisterOptions{Name: name})
	}
	r.logger.Info("Registered workflows", zap.String("queue", queue), zap.Strings("workflows", names))
	return nil
}

// RegisterActivities registers every activity under its wire name.
func (r *ChatflowRegistry) RegisterActivities(queue string, reg Registrar) error {
	all := r.activities.ByName()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		reg.RegisterActivityWithOptions(all[name], activity.RegisterOptions{Name: name})
	}
	r.logger.Info("Registered activities", zap.String("queue", queue), zap.Int("count", len(names)))
	return nil
}

// WorkerOptions maps queue concurrency onto SDK worker options.
func WorkerOptions(c config.QueueConcurrency, interceptors ...interceptor.WorkerInterceptor) worker.Options {
	opts := worker.Options{Interceptors: interceptors}
	if c.Activities > 0 {
		opts.MaxConcurrentActivityExecutionSize = c.Activities
	}
	if c.Workflows > 0 {
		opts.MaxConcurrentWorkflowTaskExecutionSize = c.Workflows
	}
	return opts
}

// NewWorkers builds one registered worker per task queue. Workers are not started.
func NewWorkers(c client.Client, cfg *config.Config, reg Registry, interceptors []interceptor.WorkerInterceptor, logger *zap.Logger) (map[string]worker.Worker, error) {
	out := make(map[string]worker.Worker, len(constants.TaskQueues))
	for _, queue := range constants.TaskQueues {
		conc := cfg.Concurrency(queue)
		w := worker.New(c, queue, WorkerOptions(conc, interceptors...))
		if err := reg.RegisterWorkflows(queue, w); err != nil {
			return nil, err
		}
		if err := reg.RegisterActivities(queue, w); err != nil {
			return nil, err
		}
		logger.Info("Worker configured",
			zap.String("queue", queue),
			zap.Int("activity_concurrency", conc.Activities),
			zap.Int("workflow_concurrency", conc.Workflows))
		out[queue] = w
	}
	return out, nil
}
