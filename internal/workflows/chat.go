package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/chatflow/orchestrator/internal/activities"
	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/models"
)

func chatActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    5 * time.Second,
			MaximumAttempts:    2,
		},
	}
}

// ChatWorkflow generates a response for the conversation, runs the attached tool
// invocations, persists the result and returns the response. The conversation and
// model can be changed by signal while it runs.
func (w *Workflows) ChatWorkflow(ctx workflow.Context, in ChatInput) (string, error) {
	logger := workflow.GetLogger(ctx)

	conversation := append([]models.Message(nil), in.Messages...)
	currentModel := in.Model

	if err := workflow.SetQueryHandler(ctx, constants.QueryConversation, func() ([]models.Message, error) {
		return append([]models.Message(nil), conversation...), nil
	}); err != nil {
		return "", err
	}
	if err := workflow.SetQueryHandler(ctx, constants.QueryCurrentModel, func() (models.ModelConfig, error) {
		return currentModel, nil
	}); err != nil {
		return "", err
	}

	modelCh := workflow.GetSignalChannel(ctx, constants.SignalUpdateModel)
	messageCh := workflow.GetSignalChannel(ctx, constants.SignalAddMessage)
	workflow.Go(ctx, func(gctx workflow.Context) {
		for {
			sel := workflow.NewSelector(gctx)
			sel.AddReceive(modelCh, func(c workflow.ReceiveChannel, more bool) {
				var m models.ModelConfig
				c.Receive(gctx, &m)
				currentModel = m
				logger.Info("Model updated", "provider", m.Provider, "model", m.Model)
			})
			sel.AddReceive(messageCh, func(c workflow.ReceiveChannel, more bool) {
				var msg models.Message
				c.Receive(gctx, &msg)
				conversation = append(conversation, msg)
			})
			sel.Select(gctx)
		}
	})

	actx := workflow.WithActivityOptions(ctx, chatActivityOptions())

	var response string
	if err := workflow.ExecuteActivity(actx, constants.GenerateChatResponseActivity, activities.ChatResponseInput{
		Conversation: conversation,
		Model:        currentModel,
	}).Get(ctx, &response); err != nil {
		logger.Error("Chat response generation failed", "error", err)
		return "", err
	}

	for _, inv := range in.ToolInvocations {
		var result string
		if err := workflow.ExecuteActivity(actx, constants.InvokeToolActivity, inv).Get(ctx, &result); err != nil {
			logger.Error("Tool invocation failed", "tool", inv.Name, "error", err)
			return "", err
		}
		conversation = append(conversation, models.Message{
			Role:      models.RoleTool,
			Content:   result,
			Timestamp: workflow.Now(ctx),
		})
	}

	err := workflow.ExecuteActivity(actx, constants.SaveToDatabaseActivity, activities.SaveConversationInput{
		WorkflowID:   workflow.GetInfo(ctx).WorkflowExecution.ID,
		Conversation: conversation,
		Model:        currentModel,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("Conversation not persisted", "error", err)
	}
	return response, nil
}
