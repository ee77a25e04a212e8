package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/chatflow/orchestrator/internal/db"
	"github.com/chatflow/orchestrator/internal/streaming"
	"github.com/chatflow/orchestrator/internal/tools"
)

func callWorkflowID(ctx context.Context, call tools.Call) string {
	if call.Context != nil && call.Context.WorkflowID != "" {
		return call.Context.WorkflowID
	}
	id, _ := executionIDs(ctx)
	return id
}

// publish sends an event when a notifier is configured. Publishing is retried by
// the activity policy; a repeat delivery shows up as a duplicate event.
func (a *Activities) publish(ctx context.Context, evt streaming.Event) (tools.Result, error) {
	if a.notifier == nil || evt.WorkflowID == "" {
		activity.GetLogger(ctx).Debug("Notification not published", "type", evt.Type, "workflow_id", evt.WorkflowID)
		return tools.Result{"ok": true}, nil
	}
	id, err := a.notifier.Publish(ctx, evt)
	if err != nil {
		return nil, retryable(tools.ErrTypeProviderUnavailable, err, "publish %s: %v", evt.Type, err)
	}
	return tools.Result{"ok": true, "event_id": id}, nil
}

func (a *Activities) messageUpdate(ctx context.Context, call tools.Call, p *tools.MessageUpdateParams) (tools.Result, error) {
	return a.publish(ctx, streaming.Event{
		WorkflowID: callWorkflowID(ctx, call),
		Type:       streaming.EventMessageUpdate,
		Message:    p.Message,
		Data: map[string]interface{}{
			"status":       p.Status,
			"status_emoji": p.StatusEmoji,
		},
	})
}

func (a *Activities) todo(ctx context.Context, call tools.Call, p *tools.TodoParams) (tools.Result, error) {
	items := make([]interface{}, 0, len(p.Todos))
	for _, t := range p.Todos {
		items = append(items, map[string]interface{}{"content": t.Content, "status": t.Status})
	}
	return a.publish(ctx, streaming.Event{
		WorkflowID: callWorkflowID(ctx, call),
		Type:       streaming.EventTodo,
		Data:       map[string]interface{}{"todos": items},
	})
}

func (a *Activities) followUps(ctx context.Context, call tools.Call, p *tools.FollowUpsParams) (tools.Result, error) {
	items := make([]interface{}, 0, len(p.FollowUps))
	for _, f := range p.FollowUps {
		items = append(items, f)
	}
	return a.publish(ctx, streaming.Event{
		WorkflowID: callWorkflowID(ctx, call),
		Type:       streaming.EventFollowUps,
		Data:       map[string]interface{}{"follow_ups": items},
	})
}

// handoff persists the summary under an id stable across retries, then announces it.
func (a *Activities) handoff(ctx context.Context, call tools.Call, p *tools.HandoffParams) (tools.Result, error) {
	workflowID := callWorkflowID(ctx, call)
	_, key := executionIDs(ctx)
	payload := p.Map()

	if a.store != nil && key != "" {
		err := a.store.SaveHandoff(ctx, db.Handoff{
			ID:         key,
			WorkflowID: workflowID,
			Reason:     p.Reason,
			Payload:    payload,
		})
		if err != nil {
			return nil, retryable(tools.ErrTypeProviderUnavailable, err, "save handoff: %v", err)
		}
	}
	if _, err := a.publish(ctx, streaming.Event{
		WorkflowID: workflowID,
		Type:       streaming.EventHandoff,
		Message:    p.Reason,
		Data:       payload,
	}); err != nil {
		return nil, err
	}
	return tools.Result{"ok": true, "handoff_id": key}, nil
}
