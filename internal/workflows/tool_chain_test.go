package workflows

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/tools"
)

// scriptedTools replaces the tool executor with canned per-tool responses and
// records every call it sees.
type scriptedTools struct {
	mu    sync.Mutex
	calls []tools.Call
	fns   map[string]func(tools.Call) (tools.Result, error)
}

func (s *scriptedTools) execute(_ context.Context, call tools.Call) (tools.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	fn := s.fns[call.Name]
	s.mu.Unlock()
	if fn == nil {
		return tools.Result{"ok": true}, nil
	}
	return fn(call)
}

func (s *scriptedTools) called(name string) []tools.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tools.Call
	for _, c := range s.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func scriptTools(env *testEnv, fns map[string]func(tools.Call) (tools.Result, error)) *scriptedTools {
	s := &scriptedTools{fns: fns}
	env.OnActivity(constants.ExecuteToolActivity, mock.Anything, mock.Anything).Return(s.execute)
	return s
}

func TestToolChainRunsListing(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, afero.WriteFile(env.fs, "/p/main.go", []byte("package main\n"), 0o644))

	env.ExecuteWorkflow(constants.ToolChainWorkflow, ToolChainInput{
		InitialContext: ToolChainInitialContext{Task: "t"},
		Chain:          []ChainEntry{{Name: tools.ToolLs, Params: map[string]interface{}{"path": "/p"}}},
		MaxTokens:      1000000,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var res ToolChainResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Equal(t, 1, res.CompletedTools)
	assert.False(t, res.HandoffTriggered)
	require.Len(t, res.Results, 1)
	assert.Equal(t, tools.ToolLs, res.Results[0].Tool)
	listing := res.Results[0].Result.(map[string]interface{})
	assert.Equal(t, "/p", listing["path"])
	assert.Equal(t, []interface{}{"main.go"}, listing["entries"])
	assert.Equal(t, "t", res.Context.CurrentTask)
	assert.Positive(t, res.FinalTokenCount)
	assert.Equal(t, res.Context.TokenCount, res.FinalTokenCount)
}

func TestToolChainRecordsFailuresAndContinues(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, afero.WriteFile(env.fs, "/src/a.txt", []byte("old\n"), 0o644))

	env.ExecuteWorkflow(constants.ToolChainWorkflow, ToolChainInput{
		Chain: []ChainEntry{
			{Name: "no_such_tool"},
			{Name: tools.ToolRead, Params: map[string]interface{}{"file_path": "/missing.txt"}},
			{Name: tools.ToolEdit, Params: map[string]interface{}{"file_path": "/src/a.txt", "old_string": "old", "new_string": "new"}},
			{Name: tools.ToolWrite, Params: map[string]interface{}{"file_path": "/src/b.txt", "content": "b"}},
		},
	})

	require.NoError(t, env.GetWorkflowError())
	var res ToolChainResult
	require.NoError(t, env.GetWorkflowResult(&res))
	require.Len(t, res.Results, 4)
	assert.Equal(t, "Unknown tool: no_such_tool", res.Results[0].Error)
	assert.NotEmpty(t, res.Results[1].Error)
	assert.Empty(t, res.Results[2].Error)
	assert.Empty(t, res.Results[3].Error)
	assert.Equal(t, []string{"/src/a.txt", "/src/b.txt"}, res.Context.FileModifications)
	assert.Equal(t, defaultChainTask, res.Context.CurrentTask)

	data, err := afero.ReadFile(env.fs, "/src/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))
}

func TestToolChainHandsOffNearTokenLimit(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.fs.MkdirAll("/p", 0o755))
	scripted := scriptTools(env, map[string]func(tools.Call) (tools.Result, error){
		tools.ToolLs: func(c tools.Call) (tools.Result, error) {
			return tools.Result{"path": c.Parameters["path"], "entries": []interface{}{}}, nil
		},
	})

	chain := []ChainEntry{
		{Name: tools.ToolLs, Params: map[string]interface{}{"path": "/p"}},
		{Name: tools.ToolLs, Params: map[string]interface{}{"path": "/q"}},
		{Name: tools.ToolGlob, Params: map[string]interface{}{"pattern": "*.go"}},
	}
	env.ExecuteWorkflow(constants.ToolChainWorkflow, ToolChainInput{
		InitialContext: ToolChainInitialContext{Task: "index repo"},
		Chain:          chain,
		MaxTokens:      100,
	})

	require.NoError(t, env.GetWorkflowError())
	var res ToolChainResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.True(t, res.HandoffTriggered)
	assert.Equal(t, 1, res.CompletedTools)
	require.Len(t, res.RemainingTools, 2)
	assert.Equal(t, "/q", res.RemainingTools[0].Params["path"])
	assert.Equal(t, tools.ToolGlob, res.RemainingTools[1].Name)
	assert.Empty(t, res.HandoffError)

	assert.Len(t, scripted.called(tools.ToolLs), 1)
	assert.Empty(t, scripted.called(tools.ToolGlob))
	handoffs := scripted.called(tools.ToolHandoff)
	require.Len(t, handoffs, 1)
	p := handoffs[0].Parameters
	assert.Equal(t, "Approaching token limit", p["reason"])
	assert.Equal(t, "index repo", p["primary_request"])
	assert.Equal(t, "Executed 1 tools in chain", p["key_topics"])
	assert.Equal(t, "Executing tool: ls", p["current_task"])
	assert.Equal(t, "Continue with remaining 2 tools", p["next_step"])
}

func TestToolChainDeniedToolNeverRuns(t *testing.T) {
	env := newTestEnv(t)
	scripted := scriptTools(env, nil)

	env.RegisterDelayedCallback(func() {
		var pending []string
		env.query(t, constants.QueryPendingApprovals, &pending)
		assert.Equal(t, []string{tools.ToolBashRun}, pending)

		var ctx ToolChainContext
		env.query(t, constants.QueryCurrentContext, &ctx)
		assert.Equal(t, []string{tools.ToolBashRun}, ctx.ApprovalQueue)

		env.SignalWorkflow(constants.SignalApproveTool, ToolApproval{ToolID: tools.ToolBashRun, Approved: false})
	}, time.Minute)

	env.ExecuteWorkflow(constants.ToolChainWorkflow, ToolChainInput{
		Chain: []ChainEntry{
			{Name: tools.ToolBashRun, Params: map[string]interface{}{"command": "rm -rf /"}},
			{Name: tools.ToolLs, Params: map[string]interface{}{"path": "/"}},
		},
	})

	require.NoError(t, env.GetWorkflowError())
	var res ToolChainResult
	require.NoError(t, env.GetWorkflowResult(&res))
	require.Len(t, res.Results, 1)
	assert.Equal(t, tools.ToolLs, res.Results[0].Tool)
	assert.Empty(t, res.Context.ApprovalQueue)
	assert.Empty(t, scripted.called(tools.ToolBashRun))
	assert.Len(t, scripted.called(tools.ToolLs), 1)
}

func TestToolChainBashTimeoutFallsBackToCheck(t *testing.T) {
	env := newTestEnv(t)
	scripted := scriptTools(env, map[string]func(tools.Call) (tools.Result, error){
		tools.ToolBashRun: func(tools.Call) (tools.Result, error) {
			return nil, temporal.NewNonRetryableApplicationError("Command timeout after 10m0s", tools.ErrTypeTimeout, nil)
		},
		tools.ToolBashCommandCheck: func(c tools.Call) (tools.Result, error) {
			return tools.Result{"command_id": c.Parameters["command_id"], "status": "timed_out"}, nil
		},
	})

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.SignalAddToolToChain, ChainEntry{Name: tools.ToolLs, Params: map[string]interface{}{"path": "/"}})
	}, time.Minute)
	env.RegisterDelayedCallback(func() {
		var chain []ChainEntry
		env.query(t, constants.QueryToolChain, &chain)
		require.Len(t, chain, 2)
		assert.Equal(t, 2, chain[1].Seq)

		env.SignalWorkflow(constants.SignalApproveTool, ToolApproval{ToolID: tools.ToolBashRun, Approved: true})
	}, 2*time.Minute)

	env.ExecuteWorkflow(constants.ToolChainWorkflow, ToolChainInput{
		Chain: []ChainEntry{{Name: tools.ToolBashRun, Params: map[string]interface{}{"command": "make test"}}},
	})

	require.NoError(t, env.GetWorkflowError())
	var res ToolChainResult
	require.NoError(t, env.GetWorkflowResult(&res))
	require.Len(t, res.Results, 2)
	assert.Equal(t, "bash_run_check", res.Results[0].Tool)
	assert.Empty(t, res.Results[0].Error)
	assert.Equal(t, tools.ToolLs, res.Results[1].Tool)

	runs := scripted.called(tools.ToolBashRun)
	require.Len(t, runs, 1)
	id, _ := runs[0].Parameters["command_id"].(string)
	assert.True(t, strings.HasSuffix(id, "-1"), "command id %q", id)
	checks := scripted.called(tools.ToolBashCommandCheck)
	require.Len(t, checks, 1)
	assert.Equal(t, id, checks[0].Parameters["command_id"])
}

func TestToolChainContextUpdatesAreMonotonic(t *testing.T) {
	env := newTestEnv(t)
	scripted := scriptTools(env, nil)

	high, low := 95, 5
	task := "patched"
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.SignalUpdateContext, ContextPatch{TokenCount: &high, CurrentTask: &task})
		env.SignalWorkflow(constants.SignalUpdateContext, ContextPatch{TokenCount: &low})
	}, time.Minute)
	env.RegisterDelayedCallback(func() {
		var ctx ToolChainContext
		env.query(t, constants.QueryCurrentContext, &ctx)
		assert.Equal(t, 95, ctx.TokenCount)
		assert.Equal(t, "patched", ctx.CurrentTask)

		env.SignalWorkflow(constants.SignalApproveTool, ToolApproval{ToolID: tools.ToolImageGenerate, Approved: true})
	}, 2*time.Minute)

	env.ExecuteWorkflow(constants.ToolChainWorkflow, ToolChainInput{
		Chain:     []ChainEntry{{Name: tools.ToolImageGenerate, Params: map[string]interface{}{"prompt": "a cat"}}},
		MaxTokens: 100,
	})

	require.NoError(t, env.GetWorkflowError())
	var res ToolChainResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.True(t, res.HandoffTriggered)
	assert.Equal(t, 0, res.CompletedTools)
	assert.Equal(t, 95, res.FinalTokenCount)
	require.Len(t, res.RemainingTools, 1)
	assert.Empty(t, scripted.called(tools.ToolImageGenerate))
}
