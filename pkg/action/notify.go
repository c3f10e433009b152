package action

import (
	"context"
	"fmt"

	"github.com/oakline/schedcore/pkg/core"
)

// notify delivers a reminder into the agent's active conversation and
// raises a notification pointing at it. It fails only on a data-layer
// error.
func (d *Dispatcher) notify(ctx context.Context, job *core.Job, payload *core.Payload) (map[string]any, error) {
	conv, err := d.deps.Conversations.FindOrCreateActiveConversation(ctx, job.AgentID)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	body := payload.Message
	if body == "" {
		body = job.Title
	}

	if taskID := linkedTaskID(job, payload); taskID != "" {
		task, err := d.deps.Tasks.GetTask(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("resolve linked task: %w", err)
		}
		if task != nil {
			body += "\n\nTask: " + task.Title
			if task.DueAt != nil {
				body += " (due " + task.DueAt.Format("Jan 2, 2006") + ")"
			}
		}
	}

	msg, err := d.deps.Conversations.InsertMessage(ctx, conv.ID, "assistant", body, map[string]any{
		"jobId": job.ID,
		"kind":  "scheduled_reminder",
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	notif := &core.Notification{
		AgentID:  job.AgentID,
		Type:     "reminder",
		Title:    job.Title,
		Content:  body,
		LinkType: core.LinkConversation,
		LinkID:   conv.ID,
	}
	if err := d.deps.Notifications.CreateNotification(ctx, notif); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	return map[string]any{
		"conversationId": conv.ID,
		"messageId":      msg.ID,
		"notificationId": notif.ID,
	}, nil
}
