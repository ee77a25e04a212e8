package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/chatflow/orchestrator/internal/db"
	"github.com/chatflow/orchestrator/internal/metrics"
	"github.com/chatflow/orchestrator/internal/models"
)

// ChatResponseInput is the conversation and model a response is generated for.
type ChatResponseInput struct {
	Conversation []models.Message  `json:"conversation"`
	Model        models.ModelConfig `json:"modelConfig"`
}

// SaveConversationInput is a conversation snapshot to persist.
type SaveConversationInput struct {
	WorkflowID   string             `json:"workflowId,omitempty"`
	Conversation []models.Message   `json:"conversation"`
	Model        models.ModelConfig `json:"modelConfig"`
}

// GenerateChatResponse produces the assistant reply. Provider adapters live outside
// this service, so the reply names the provider and model that would serve it.
func (a *Activities) GenerateChatResponse(ctx context.Context, in ChatResponseInput) (string, error) {
	activity.RecordHeartbeat(ctx, len(in.Conversation))
	activity.GetLogger(ctx).Info("Generating chat response",
		"provider", in.Model.Provider,
		"model", in.Model.Model,
		"messages", len(in.Conversation),
	)
	metrics.ChatResponses.WithLabelValues(in.Model.Provider, in.Model.Model).Inc()
	return fmt.Sprintf("Response from %s/%s", in.Model.Provider, in.Model.Model), nil
}

// InvokeTool acknowledges a tool invocation attached to a chat turn.
func (a *Activities) InvokeTool(ctx context.Context, inv models.ToolInvocation) (string, error) {
	activity.GetLogger(ctx).Info("Invoking tool", "tool", inv.Name, "id", inv.ID)
	return fmt.Sprintf("Executed tool %s", inv.Name), nil
}

// SaveToDatabase upserts the conversation, so a retried save is harmless.
func (a *Activities) SaveToDatabase(ctx context.Context, in SaveConversationInput) error {
	logger := activity.GetLogger(ctx)
	if a.store == nil {
		logger.Info("No store configured, conversation not persisted", "messages", len(in.Conversation))
		metrics.ConversationsSaved.WithLabelValues("skipped").Inc()
		return nil
	}
	workflowID := in.WorkflowID
	if workflowID == "" {
		workflowID, _ = executionIDs(ctx)
	}
	err := a.store.SaveConversation(ctx, db.Conversation{
		WorkflowID: workflowID,
		Provider:   in.Model.Provider,
		Model:      in.Model.Model,
		Messages:   in.Conversation,
	})
	if err != nil {
		metrics.ConversationsSaved.WithLabelValues("error").Inc()
		return fmt.Errorf("save conversation: %w", err)
	}
	metrics.ConversationsSaved.WithLabelValues("ok").Inc()
	logger.Info("Conversation saved", "workflow_id", workflowID, "messages", len(in.Conversation))
	return nil
}
