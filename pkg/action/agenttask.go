package action

import (
	"context"
	"fmt"

	"github.com/oakline/schedcore/pkg/core"
)

// agentTask runs an autonomous agent turn for the job. The run is bounded
// by the runner's tool-call and token ceilings; hitting a ceiling is a
// failure, not a silent truncation.
func (d *Dispatcher) agentTask(ctx context.Context, job *core.Job, payload *core.Payload) (map[string]any, error) {
	profile, err := d.deps.Agents.GetAgent(ctx, job.AgentID)
	if err != nil {
		return nil, fmt.Errorf("resolve agent: %w", err)
	}

	conv, err := d.deps.Conversations.CreateConversation(ctx, job.AgentID, job.Title)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	seed := fmt.Sprintf("[Scheduled Task: %s]\n\n%s", job.Title, payload.Instruction)
	if _, err := d.deps.Conversations.InsertMessage(ctx, conv.ID, "user", seed, map[string]any{
		"jobId": job.ID,
		"kind":  "scheduled_task",
	}); err != nil {
		return nil, fmt.Errorf("seed conversation: %w", err)
	}

	scoped := *job
	if payload.TaskID != "" {
		scoped.TaskID = payload.TaskID
	}
	tools := d.deps.AgentTools.ForJob(&scoped)

	if err := d.deps.AgentRunner.Run(ctx, profile.SystemPrompt, seed, tools); err != nil {
		return nil, fmt.Errorf("agent run: %w", err)
	}

	notif := &core.Notification{
		AgentID:  job.AgentID,
		Type:     "agent_task_completed",
		Title:    job.Title,
		Content:  fmt.Sprintf("Scheduled task %q finished.", job.Title),
		LinkType: core.LinkConversation,
		LinkID:   conv.ID,
	}
	if err := d.deps.Notifications.CreateNotification(ctx, notif); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	return map[string]any{
		"conversationId": conv.ID,
		"agent":          profile.Name,
		"notificationId": notif.ID,
	}, nil
}
