package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap/zaptest"

	"github.com/chatflow/orchestrator/internal/activities"
	"github.com/chatflow/orchestrator/internal/config"
	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/workflows"
)

type recordingRegistrar struct {
	workflows  []string
	activities []string
}

func (r *recordingRegistrar) RegisterWorkflowWithOptions(_ interface{}, o workflow.RegisterOptions) {
	r.workflows = append(r.workflows, o.Name)
}

func (r *recordingRegistrar) RegisterActivityWithOptions(_ interface{}, o activity.RegisterOptions) {
	r.activities = append(r.activities, o.Name)
}

func newRegistry(t *testing.T) *ChatflowRegistry {
	return NewChatflowRegistry(workflows.New(nil), activities.New(activities.Config{}, activities.Deps{}), zaptest.NewLogger(t))
}

func TestEveryWorkflowIsRouted(t *testing.T) {
	routed := map[string]bool{}
	for _, queue := range constants.TaskQueues {
		for _, name := range QueueWorkflows[queue] {
			routed[name] = true
		}
	}
	for name := range workflows.New(nil).ByName() {
		assert.True(t, routed[name], "%s is not routed to any queue", name)
	}
}

func TestRegisterPerQueue(t *testing.T) {
	r := newRegistry(t)

	rec := &recordingRegistrar{}
	require.NoError(t, r.RegisterWorkflows(constants.BackgroundQueue, rec))
	require.NoError(t, r.RegisterActivities(constants.BackgroundQueue, rec))
	assert.Equal(t, []string{constants.ApprovalWorkflow}, rec.workflows)
	assert.Len(t, rec.activities, 8)
	assert.Contains(t, rec.activities, constants.ExecuteToolActivity)

	rec = &recordingRegistrar{}
	require.NoError(t, r.RegisterWorkflows(constants.ResearchQueue, rec))
	assert.ElementsMatch(t, []string{
		constants.ReadAgentWorkflow, constants.DeepResearchWorkflow, constants.ToolInvocationWorkflow,
	}, rec.workflows)
}

func TestRegisterUnknownQueue(t *testing.T) {
	err := newRegistry(t).RegisterWorkflows("nope", &recordingRegistrar{})
	require.Error(t, err)
}

func TestWorkerOptions(t *testing.T) {
	opts := WorkerOptions(config.QueueConcurrency{Activities: 5, Workflows: 2})
	assert.Equal(t, 5, opts.MaxConcurrentActivityExecutionSize)
	assert.Equal(t, 2, opts.MaxConcurrentWorkflowTaskExecutionSize)

	opts = WorkerOptions(config.QueueConcurrency{})
	assert.Zero(t, opts.MaxConcurrentActivityExecutionSize)
}
