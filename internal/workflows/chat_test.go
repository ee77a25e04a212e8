package workflows

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/chatflow/orchestrator/internal/activities"
	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/models"
)

func TestChatWorkflowReturnsGeneratedResponse(t *testing.T) {
	env := newTestEnv(t)

	env.ExecuteWorkflow(constants.ChatWorkflow, ChatInput{
		Model: models.ModelConfig{Provider: "OpenAI", Model: "gpt-4o-mini"},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var response string
	require.NoError(t, env.GetWorkflowResult(&response))
	assert.Equal(t, "Response from OpenAI/gpt-4o-mini", response)
}

func TestChatWorkflowSignalsAndQueries(t *testing.T) {
	env := newTestEnv(t)

	// Hold response generation so signals land while the workflow is running.
	env.OnActivity(constants.GenerateChatResponseActivity, mock.Anything, mock.Anything).
		Return("ok", nil).After(10 * time.Second)

	var saved activities.SaveConversationInput
	env.OnActivity(constants.SaveToDatabaseActivity, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(activities.SaveConversationInput) }).
		Return(nil)

	sent := []models.Message{
		{Role: models.RoleUser, Content: "one"},
		{Role: models.RoleAssistant, Content: "two"},
		{Role: models.RoleUser, Content: "three"},
	}
	env.RegisterDelayedCallback(func() {
		for _, m := range sent {
			env.SignalWorkflow(constants.SignalAddMessage, m)
		}
		env.SignalWorkflow(constants.SignalUpdateModel, models.ModelConfig{Provider: "Anthropic", Model: "claude"})
	}, time.Second)
	env.RegisterDelayedCallback(func() {
		var conv []models.Message
		env.query(t, constants.QueryConversation, &conv)
		require.Len(t, conv, 4)
		for i, m := range sent {
			assert.Equal(t, m.Content, conv[i+1].Content)
		}

		var model models.ModelConfig
		env.query(t, constants.QueryCurrentModel, &model)
		assert.Equal(t, models.ModelConfig{Provider: "Anthropic", Model: "claude"}, model)
	}, 2*time.Second)

	env.ExecuteWorkflow(constants.ChatWorkflow, ChatInput{
		Messages: []models.Message{{Role: models.RoleSystem, Content: "zero"}},
		Model:    models.ModelConfig{Provider: "OpenAI", Model: "gpt-4o-mini"},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, "default-test-workflow-id", saved.WorkflowID)
	assert.Equal(t, "claude", saved.Model.Model)
	assert.Len(t, saved.Conversation, 4)
}

func TestChatWorkflowAppendsToolResults(t *testing.T) {
	env := newTestEnv(t)

	env.ExecuteWorkflow(constants.ChatWorkflow, ChatInput{
		Model: models.ModelConfig{Provider: "OpenAI", Model: "gpt-4o-mini"},
		ToolInvocations: []models.ToolInvocation{
			{Name: "calculator"},
			{Name: "search"},
		},
	})

	require.NoError(t, env.GetWorkflowError())
	var conv []models.Message
	env.query(t, constants.QueryConversation, &conv)
	require.Len(t, conv, 2)
	assert.Equal(t, models.RoleTool, conv[0].Role)
	assert.Equal(t, "Executed tool calculator", conv[0].Content)
	assert.Equal(t, "Executed tool search", conv[1].Content)
}

func TestChatWorkflowGenerationFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.OnActivity(constants.GenerateChatResponseActivity, mock.Anything, mock.Anything).
		Return("", temporal.NewNonRetryableApplicationError("provider down", "ProviderUnavailable", nil))

	env.ExecuteWorkflow(constants.ChatWorkflow, ChatInput{Model: models.ModelConfig{Provider: "OpenAI", Model: "x"}})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "provider down", appErr.Message())
}

func TestChatWorkflowIgnoresPersistenceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.OnActivity(constants.SaveToDatabaseActivity, mock.Anything, mock.Anything).
		Return(temporal.NewNonRetryableApplicationError("db down", "ProviderUnavailable", nil))

	env.ExecuteWorkflow(constants.ChatWorkflow, ChatInput{Model: models.ModelConfig{Provider: "OpenAI", Model: "gpt-4o-mini"}})

	require.NoError(t, env.GetWorkflowError())
	var response string
	require.NoError(t, env.GetWorkflowResult(&response))
	assert.Equal(t, "Response from OpenAI/gpt-4o-mini", response)
}
