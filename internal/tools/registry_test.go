package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/chatflow/orchestrator/internal/constants"
)

func TestDefaultCatalog(t *testing.T) {
	r := NewDefaultRegistry()
	all := r.All()
	require.Len(t, all, 24)
	assert.Equal(t, ToolLs, all[0].Name)
	assert.Equal(t, ToolHandoff, all[len(all)-1].Name)

	bash, ok := r.Get(ToolBashRun)
	require.True(t, ok)
	assert.True(t, bash.RequiresApproval)
	assert.Equal(t, 10*time.Minute, bash.Timeout)
	assert.True(t, bash.HasConstraint(ConstraintUserAuth))
	assert.Equal(t, DefaultInitialInterval, bash.RetryPolicy.InitialInterval)
	assert.Equal(t, DefaultMaximumInterval, bash.RetryPolicy.MaximumInterval)
	assert.Equal(t, int32(DefaultMaximumAttempts), bash.RetryPolicy.MaximumAttempts)

	assert.True(t, r.RequiresApproval(ToolImageGenerate))
	assert.False(t, r.RequiresApproval(ToolLs))
	assert.False(t, r.RequiresApproval("nope"))
}

func TestByCategoryKeepsInsertionOrder(t *testing.T) {
	r := NewDefaultRegistry()
	var names []string
	for _, d := range r.ByCategory(CategoryFile) {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"ls", "read", "edit", "multi_edit", "glob", "grep", "write"}, names)
	assert.Empty(t, r.ByCategory(CategoryProject))
}

func TestRegisterOverwriteKeepsPosition(t *testing.T) {
	r := NewRegistry(
		ToolDefinition{Name: "a", Category: CategoryDev},
		ToolDefinition{Name: "b", Category: CategoryDev},
	)
	r.Register(ToolDefinition{Name: "a", Category: CategoryWeb, Timeout: time.Second})

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, CategoryWeb, all[0].Category)
	assert.Equal(t, time.Second, all[0].Timeout)
	assert.Equal(t, DefaultTimeout, all[1].Timeout)
}

func TestActivityOptionsFromDefinition(t *testing.T) {
	d := ToolDefinition{Name: "x", RetryPolicy: RetryPolicy{MaximumAttempts: 7}}.withDefaults()
	opts := d.ActivityOptions()
	assert.Equal(t, DefaultTimeout, opts.StartToCloseTimeout)
	require.NotNil(t, opts.RetryPolicy)
	assert.Equal(t, int32(7), opts.RetryPolicy.MaximumAttempts)
	assert.Equal(t, time.Second, opts.RetryPolicy.InitialInterval)
	assert.Contains(t, opts.RetryPolicy.NonRetryableErrorTypes, ErrTypeUnknownTool)
}

// executeWorkflow runs one registry call inside a workflow.
func executeWorkflow(ctx workflow.Context, name string, params map[string]interface{}) (Result, error) {
	return NewDefaultRegistry().Execute(ctx, name, params, &CallContext{WorkflowID: workflow.GetInfo(ctx).WorkflowExecution.ID})
}

func TestRegistryExecute(t *testing.T) {
	t.Run("dispatches to executor", func(t *testing.T) {
		var ts testsuite.WorkflowTestSuite
		env := ts.NewTestWorkflowEnvironment()
		var got Call
		env.RegisterActivityWithOptions(func(ctx context.Context, call Call) (Result, error) {
			got = call
			return Result{"path": call.Parameters["path"], "entries": []string{"a.txt"}}, nil
		}, activity.RegisterOptions{Name: constants.ExecuteToolActivity})

		env.ExecuteWorkflow(executeWorkflow, "ls", map[string]interface{}{"path": "/p"})
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var res Result
		require.NoError(t, env.GetWorkflowResult(&res))
		assert.Equal(t, "/p", res["path"])
		assert.Equal(t, "ls", got.Name)
		require.NotNil(t, got.Context)
		assert.NotEmpty(t, got.Context.WorkflowID)
	})

	t.Run("unknown tool", func(t *testing.T) {
		var ts testsuite.WorkflowTestSuite
		env := ts.NewTestWorkflowEnvironment()
		env.ExecuteWorkflow(executeWorkflow, "teleport", map[string]interface{}{})
		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, ErrTypeUnknownTool, appErr.Type())
	})

	t.Run("invalid parameters never reach executor", func(t *testing.T) {
		var ts testsuite.WorkflowTestSuite
		env := ts.NewTestWorkflowEnvironment()
		called := false
		env.RegisterActivityWithOptions(func(ctx context.Context, call Call) (Result, error) {
			called = true
			return nil, nil
		}, activity.RegisterOptions{Name: constants.ExecuteToolActivity})

		env.ExecuteWorkflow(executeWorkflow, "read", map[string]interface{}{})
		err := env.GetWorkflowError()
		require.Error(t, err)
		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, ErrTypeInvalidParameters, appErr.Type())
		assert.False(t, called)
	})

	t.Run("propagates final failure", func(t *testing.T) {
		var ts testsuite.WorkflowTestSuite
		env := ts.NewTestWorkflowEnvironment()
		attempts := 0
		env.RegisterActivityWithOptions(func(ctx context.Context, call Call) (Result, error) {
			attempts++
			return nil, temporal.NewApplicationError("provider down", ErrTypeProviderUnavailable)
		}, activity.RegisterOptions{Name: constants.ExecuteToolActivity})

		env.ExecuteWorkflow(executeWorkflow, "web_search", map[string]interface{}{"query": "go"})
		require.Error(t, env.GetWorkflowError())
		assert.Equal(t, DefaultMaximumAttempts, attempts)
	})
}
