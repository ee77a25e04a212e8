package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	querypb "go.temporal.io/api/query/v1"
	"go.temporal.io/api/serviceerror"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.uber.org/zap/zaptest"

	"github.com/chatflow/orchestrator/internal/config"
	"github.com/chatflow/orchestrator/internal/models"
	"github.com/chatflow/orchestrator/internal/streaming"
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

type staticRules []models.AutoApprovalRule

func (s staticRules) Rules() []models.AutoApprovalRule { return s }

type fixture struct {
	sdk     *mocks.Client
	events  *streaming.Manager
	handler http.Handler
}

func newFixture(t *testing.T, httpCfg config.HTTPConfig, timeout time.Duration) *fixture {
	t.Helper()
	sdk := &mocks.Client{}
	t.Cleanup(func() { sdk.AssertExpectations(t) })
	logger := zaptest.NewLogger(t)
	events := streaming.NewManager(nil, 100, logger)
	srv := NewServer(Options{
		Engine:   temporal.NewClient(sdk, timeout, logger),
		Events:   events,
		Rules:    staticRules{{ToolName: "read"}},
		HTTP:     httpCfg,
		Approval: config.ApprovalConfig{PollInterval: 30 * time.Second},
		Logger:   logger,
	})
	return &fixture{sdk: sdk, events: events, handler: srv.Handler()}
}

func (f *fixture) do(method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func runningDescription(id string) *workflowservice.DescribeWorkflowExecutionResponse {
	return &workflowservice.DescribeWorkflowExecutionResponse{
		WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{
			Execution: &commonpb.WorkflowExecution{WorkflowId: id, RunId: "run-1"},
			Type:      &commonpb.WorkflowType{Name: "approvalWorkflow"},
			Status:    enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING,
		},
	}
}

func TestStartChat(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	run := &mocks.WorkflowRun{}
	run.On("GetRunID").Return("run-1")
	f.sdk.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "chat-1" && o.TaskQueue == "chat-processing"
	}), "chatWorkflow", mock.MatchedBy(func(in workflows.ChatInput) bool {
		return in.Model.Provider == "OpenAI" && in.Messages != nil
	})).Return(run, nil).Once()

	rec := f.do(http.MethodPost, "/api/chat/start", map[string]interface{}{
		"workflowId":  "chat-1",
		"modelConfig": map[string]string{"provider": "OpenAI", "model": "gpt-4o-mini"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "chat-1", decode(t, rec)["workflowId"])
}

func TestStartChatRejectsMissingModel(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	rec := f.do(http.MethodPost, "/api/chat/start", map[string]interface{}{"initialMessages": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartChatRejectsUnknownProvider(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	rec := f.do(http.MethodPost, "/api/chat/start", map[string]interface{}{
		"modelConfig": map[string]string{"model": "house-model-v2"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.sdk.AssertNotCalled(t, "ExecuteWorkflow")
}

func TestEngineErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", serviceerror.NewNotFound("gone"), http.StatusNotFound, "not_found"},
		{"unavailable", serviceerror.NewUnavailable("down"), http.StatusServiceUnavailable, "unavailable"},
		{"not running", serviceerror.NewFailedPrecondition("closed"), http.StatusServiceUnavailable, "not_running"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, config.HTTPConfig{}, time.Second)
			f.sdk.On("SignalWorkflow", mock.Anything, "chat-1", "", "addMessage", mock.Anything).Return(tc.err).Once()

			rec := f.do(http.MethodPost, "/api/chat/message", map[string]interface{}{
				"workflowId": "chat-1",
				"message":    map[string]string{"role": "user", "content": "hi"},
			})
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec)["code"])
		})
	}
}

func TestStartConflict(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	f.sdk.On("ExecuteWorkflow", mock.Anything, mock.Anything, "chatWorkflow", mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("exists", "", "run-0")).Once()

	rec := f.do(http.MethodPost, "/api/chat/start", map[string]interface{}{
		"workflowId":  "chat-1",
		"modelConfig": map[string]string{"provider": "OpenAI", "model": "gpt-4o-mini"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeadlineIsGatewayTimeout(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, 20*time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	f.sdk.On("SignalWorkflow", mock.Anything, "chat-1", "", "updateModel", mock.Anything).
		Run(func(mock.Arguments) { <-release }).Return(nil).Once()

	rec := f.do(http.MethodPost, "/api/chat/model", map[string]interface{}{
		"workflowId": "chat-1",
		"model":      map[string]string{"provider": "Anthropic", "model": "claude"},
	})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "deadline_exceeded", decode(t, rec)["code"])
}

func TestConversationQuery(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	f.sdk.On("QueryWorkflowWithOptions", mock.Anything, mock.MatchedBy(func(r *client.QueryWorkflowWithOptionsRequest) bool {
		return r.WorkflowID == "chat-1" && r.QueryType == "getConversation"
	})).Return(&client.QueryWorkflowWithOptionsResponse{
		QueryResult: jsonValue{[]models.Message{{Role: "user", Content: "a"}, {Role: "user", Content: "b"}}},
	}, nil).Once()

	rec := f.do(http.MethodGet, "/api/chat/conversation?workflowId=chat-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decode(t, rec)["conversation"].([]interface{})
	require.Len(t, conv, 2)
	assert.Equal(t, "b", conv[1].(map[string]interface{})["content"])
}

func TestRequestApprovalStartsWorkflowWhenMissing(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	run := &mocks.WorkflowRun{}
	run.On("GetRunID").Return("run-1")
	f.sdk.On("DescribeWorkflowExecution", mock.Anything, "approvals-1", "").
		Return(nil, serviceerror.NewNotFound("missing")).Once()
	f.sdk.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "approvals-1" && o.TaskQueue == "background-tasks"
	}), "approvalWorkflow", mock.MatchedBy(func(in workflows.ApprovalInput) bool {
		return len(in.Rules) == 1 && in.Rules[0].ToolName == "read" && in.PollInterval == 30*time.Second
	})).Return(run, nil).Once()
	f.sdk.On("SignalWorkflow", mock.Anything, "approvals-1", "", "requestApproval", mock.MatchedBy(func(r models.ApprovalRequest) bool {
		return r.ToolName == "bash_run" && r.ID != ""
	})).Return(nil).Once()

	rec := f.do(http.MethodPost, "/api/approvals/request", map[string]interface{}{
		"approvalWorkflowId": "approvals-1",
		"request":            map[string]interface{}{"toolName": "bash_run", "parameters": map[string]string{"command": "ls"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "approvals-1", body["approvalWorkflowId"])
	assert.NotEmpty(t, body["requestId"])
}

func TestRequestApprovalSignalsRunningWorkflow(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	f.sdk.On("DescribeWorkflowExecution", mock.Anything, "approvals-1", "").
		Return(runningDescription("approvals-1"), nil).Once()
	f.sdk.On("SignalWorkflow", mock.Anything, "approvals-1", "", "requestApproval", mock.Anything).Return(nil).Once()

	rec := f.do(http.MethodPost, "/api/approvals/request", map[string]interface{}{
		"approvalWorkflowId": "approvals-1",
		"request":            map[string]interface{}{"id": "req-1", "toolName": "write"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", decode(t, rec)["requestId"])
}

func TestApproveSignalsDecision(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	f.sdk.On("SignalWorkflow", mock.Anything, "approvals-1", "", "approveAction",
		models.ApprovalDecision{RequestID: "req-1", Approved: true, Feedback: "ok"}).Return(nil).Once()

	rec := f.do(http.MethodPost, "/api/approvals/approve", map[string]interface{}{
		"approvalWorkflowId": "approvals-1", "requestId": "req-1", "approved": true, "feedback": "ok",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/approvals/approve", map[string]interface{}{"approvalWorkflowId": "approvals-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPendingQueryRejected(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	f.sdk.On("QueryWorkflowWithOptions", mock.Anything, mock.Anything).Return(&client.QueryWorkflowWithOptionsResponse{
		QueryRejected: &querypb.QueryRejected{Status: enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED},
	}, nil).Once()

	rec := f.do(http.MethodGet, "/api/approvals/pending?approvalWorkflowId=approvals-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_running", decode(t, rec)["code"])
}

func TestStartToolChain(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	run := &mocks.WorkflowRun{}
	run.On("GetRunID").Return("run-1")
	f.sdk.On("ExecuteWorkflow", mock.Anything, mock.Anything, "toolChainWorkflow", mock.MatchedBy(func(in workflows.ToolChainInput) bool {
		return in.InitialContext.Task == "t" && len(in.Chain) == 1 && in.Chain[0].Name == "ls" && in.MaxTokens == 1000000
	})).Return(run, nil).Once()

	rec := f.do(http.MethodPost, "/api/toolchain/start", map[string]interface{}{
		"initialContext": map[string]string{"task": "t"},
		"toolChain":      []map[string]interface{}{{"name": "ls", "params": map[string]string{"path": "/p"}}},
		"maxTokens":      1000000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decode(t, rec)["workflowId"].(string), "toolchain-"))
}

func TestApproveTool(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	f.sdk.On("SignalWorkflow", mock.Anything, "tc-1", "", "approveTool",
		workflows.ToolApproval{ToolID: "bash_run", Approved: false}).Return(nil).Once()

	rec := f.do(http.MethodPost, "/api/toolchain/approve", map[string]interface{}{
		"workflowId": "tc-1", "toolId": "bash_run", "approved": false,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDescribe(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	f.sdk.On("DescribeWorkflowExecution", mock.Anything, "approvals-1", "").
		Return(runningDescription("approvals-1"), nil).Once()

	rec := f.do(http.MethodGet, "/api/workflows/describe?workflowId=approvals-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, "approvalWorkflow", body["type"])
}

func TestStaticTokenAuth(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{AuthToken: "s3cret"}, time.Second)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/chat/conversation", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		f.do(http.MethodGet, "/api/chat/conversation", nil, "Authorization", "Bearer wrong").Code)
	// Authenticated but missing workflowId.
	assert.Equal(t, http.StatusBadRequest,
		f.do(http.MethodGet, "/api/chat/conversation", nil, "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(http.MethodGet, "/api/chat/conversation?access_token=s3cret", nil).Code)
}

func TestJWTAuth(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{JWTSecret: "signing-key"}, time.Second)
	sign := func(key string, claims jwt.RegisteredClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	valid := sign("signing-key", jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	expired := sign("signing-key", jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))})
	forged := sign("other-key", jwt.RegisteredClaims{Subject: "user-1"})
	anonymous := sign("signing-key", jwt.RegisteredClaims{})

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/chat/model", nil, "Authorization", "Bearer "+valid).Code)
	for _, tok := range []string{expired, forged, anonymous} {
		assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/chat/model", nil, "Authorization", "Bearer "+tok).Code)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{RateLimit: 1, RateBurst: 1}, time.Second)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/chat/model", nil).Code)
	rec := f.do(http.MethodGet, "/api/chat/model", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestLimiterSweepsIdleClients(t *testing.T) {
	l := newClientLimiter(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))

	now = now.Add(limiterIdleTTL + 2*time.Minute)
	assert.True(t, l.allow("b"))
	_, kept := l.clients["a"]
	assert.False(t, kept)
	assert.Nil(t, newClientLimiter(0, 10))
}

func TestPublishAndWebsocketStream(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	rec := f.do(http.MethodPost, "/api/events/publish", []map[string]interface{}{
		{"workflow_id": "tc-1", "type": "message_update", "message": "Processing tool chain"},
		{"workflow_id": "tc-1", "type": "todo", "data": map[string]interface{}{"count": 1}},
		{"type": "dropped"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["ids"], 2)

	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?workflowId=tc-1&types=message_update"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev streaming.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "message_update", ev.Type)
	assert.Equal(t, "Processing tool chain", ev.Message)

	go func() {
		_, _ = f.events.Publish(context.Background(), streaming.Event{WorkflowID: "tc-1", Type: "message_update", Message: "Completed ls. Progress: 1/1"})
	}()
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "Completed ls. Progress: 1/1", ev.Message)
}

func TestUpdateModelDetectsProvider(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{}, time.Second)
	f.sdk.On("SignalWorkflow", mock.Anything, "chat-1", "", "updateModel",
		models.ModelConfig{Model: "claude-haiku-4-5", Provider: "Anthropic"}).Return(nil).Once()

	rec := f.do(http.MethodPost, "/api/chat/model", map[string]interface{}{
		"workflowId": "chat-1",
		"model":      map[string]string{"model": "claude-haiku-4-5"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
