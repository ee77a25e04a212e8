package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/config"
	"github.com/chatflow/orchestrator/internal/models"
	"github.com/chatflow/orchestrator/internal/temporal"
	"github.com/chatflow/orchestrator/internal/workflows"
)

type jsonValue struct{ v interface{} }

func (j jsonValue) HasValue() bool { return j.v != nil }

func (j jsonValue) Get(ptr interface{}) error {
	b, err := json.Marshal(j.v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ptr)
}

func run(t *testing.T, sdk *mocks.Client, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_PATH", t.TempDir()+"/missing.yaml")
	dial := func(_ context.Context, cfg *config.Config, logger *zap.Logger) (*temporal.Client, error) {
		assert.Equal(t, "temporal:7233", cfg.Temporal.Host)
		return temporal.NewClient(sdk, time.Second, logger), nil
	}
	sdk.On("Close").Return().Maybe()
	cmd := newRootCmd(dial)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--host", "temporal:7233"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStartChat(t *testing.T) {
	sdk := &mocks.Client{}
	wr := &mocks.WorkflowRun{}
	wr.On("GetRunID").Return("run-1")
	sdk.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "chat-7" && o.TaskQueue == "chat-processing"
	}), "chatWorkflow", mock.MatchedBy(func(in workflows.ChatInput) bool {
		return in.Model.Provider == "Anthropic" && len(in.Messages) == 1 && in.Messages[0].Content == "hello"
	})).Return(wr, nil).Once()

	out, err := run(t, sdk, "start-chat", "--id", "chat-7", "--provider", "Anthropic", "-m", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, `"workflowId": "chat-7"`)
	sdk.AssertExpectations(t)
}

func TestAddMessageJoinsArgs(t *testing.T) {
	sdk := &mocks.Client{}
	sdk.On("SignalWorkflow", mock.Anything, "chat-7", "", "addMessage", mock.MatchedBy(func(m models.Message) bool {
		return m.Role == "user" && m.Content == "how are you"
	})).Return(nil).Once()

	out, err := run(t, sdk, "add-message", "chat-7", "how", "are", "you")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}

func TestApprovalsApproveAndDeny(t *testing.T) {
	sdk := &mocks.Client{}
	sdk.On("SignalWorkflow", mock.Anything, "approvals-1", "", "approveAction",
		models.ApprovalDecision{RequestID: "req-1", Approved: true}).Return(nil).Once()
	sdk.On("SignalWorkflow", mock.Anything, "approvals-1", "", "approveAction",
		models.ApprovalDecision{RequestID: "req-2", Approved: false, Feedback: "too risky"}).Return(nil).Once()

	out, err := run(t, sdk, "approvals", "approve", "approvals-1", "req-1")
	require.NoError(t, err)
	assert.Equal(t, "approved req-1\n", out)

	out, err = run(t, sdk, "approvals", "approve", "approvals-1", "req-2", "--deny", "--feedback", "too risky")
	require.NoError(t, err)
	assert.Equal(t, "denied req-2\n", out)
	sdk.AssertExpectations(t)
}

func TestApprovalsPending(t *testing.T) {
	sdk := &mocks.Client{}
	sdk.On("QueryWorkflowWithOptions", mock.Anything, mock.MatchedBy(func(r *client.QueryWorkflowWithOptionsRequest) bool {
		return r.QueryType == "getPendingApprovals"
	})).Return(&client.QueryWorkflowWithOptionsResponse{
		QueryResult: jsonValue{[]models.ApprovalRequest{{ID: "req-1", ToolName: "bash_run", RiskLevel: "high"}}},
	}, nil).Once()

	out, err := run(t, sdk, "approvals", "pending", "approvals-1")
	require.NoError(t, err)
	var pending []models.ApprovalRequest
	require.NoError(t, json.Unmarshal([]byte(out), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "bash_run", pending[0].ToolName)
}

func TestDescribeNotFound(t *testing.T) {
	sdk := &mocks.Client{}
	sdk.On("DescribeWorkflowExecution", mock.Anything, "nope", "").
		Return(nil, serviceerror.NewNotFound("missing")).Once()

	_, err := run(t, sdk, "describe", "nope")
	require.ErrorIs(t, err, temporal.ErrNotFound)
}

func TestDescribe(t *testing.T) {
	sdk := &mocks.Client{}
	sdk.On("DescribeWorkflowExecution", mock.Anything, "chat-7", "").
		Return(&workflowservice.DescribeWorkflowExecutionResponse{
			WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{
				Execution: &commonpb.WorkflowExecution{WorkflowId: "chat-7", RunId: "run-1"},
				Type:      &commonpb.WorkflowType{Name: "chatWorkflow"},
				Status:    enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED,
			},
		}, nil).Once()

	out, err := run(t, sdk, "describe", "chat-7")
	require.NoError(t, err)
	assert.Contains(t, out, `"type": "chatWorkflow"`)
	assert.Contains(t, out, `"running": false`)
}

func TestArgsValidated(t *testing.T) {
	_, err := run(t, &mocks.Client{}, "conversation")
	assert.Error(t, err)
}

func TestReplayRunsOffline(t *testing.T) {
	cmd := newRootCmd(func(context.Context, *config.Config, *zap.Logger) (*temporal.Client, error) {
		t.Fatal("replay must not dial the engine")
		return nil, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"replay", t.TempDir() + "/missing.json"})
	assert.Error(t, cmd.Execute())
}
