package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oakline/schedcore/pkg/core"
)

// Toolset carries the stores the fixed agent tools operate on. Each tool
// call is an independent transaction; no multi-step transaction spans a
// whole run.
type Toolset struct {
	Jobs   core.JobStore
	Tasks  core.TaskStore
	Memory core.MemorySearcher
}

// ForJob builds the fixed toolset for one scheduled agent run: memory
// search, task CRUD, commenting on the linked task, and scheduling a
// follow-up reminder.
func (ts Toolset) ForJob(job *core.Job) []core.Tool {
	return []core.Tool{
		ts.memorySearchTool(job),
		ts.createTaskTool(job),
		ts.updateTaskStatusTool(),
		ts.commentTool(job),
		ts.scheduleReminderTool(job),
	}
}

func (ts Toolset) memorySearchTool(job *core.Job) core.Tool {
	type args struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
	}
	return core.Tool{
		Name:        "memory_search",
		Description: "Search the agent's long-term memory for relevant context.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer"},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, fmt.Errorf("memory_search args: %w", err)
			}
			if a.Limit <= 0 {
				a.Limit = 5
			}
			return ts.Memory.Search(ctx, job.AgentID, a.Query, a.Limit)
		},
	}
}

func (ts Toolset) createTaskTool(job *core.Job) core.Tool {
	type args struct {
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
		DueAt       string `json:"dueAt,omitempty"`
	}
	return core.Tool{
		Name:        "create_task",
		Description: "Create a task for the agent. Creation is idempotent per title and agent.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"dueAt":       map[string]any{"type": "string", "format": "date-time"},
			},
			"required": []string{"title"},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, fmt.Errorf("create_task args: %w", err)
			}
			if a.Title == "" {
				return nil, fmt.Errorf("create_task: title is required")
			}
			task := &core.Task{
				AgentID:     job.AgentID,
				Title:       a.Title,
				Description: a.Description,
				DedupeKey:   contentKey(job.AgentID, a.Title, a.Description),
			}
			if a.DueAt != "" {
				due, err := time.Parse(time.RFC3339, a.DueAt)
				if err != nil {
					return nil, fmt.Errorf("create_task: bad dueAt: %w", err)
				}
				task.DueAt = &due
			}
			if err := ts.Tasks.CreateTask(ctx, task); err != nil {
				return nil, err
			}
			return map[string]any{"taskId": task.ID}, nil
		},
	}
}

func (ts Toolset) updateTaskStatusTool() core.Tool {
	type args struct {
		TaskID string `json:"taskId"`
		Status string `json:"status"`
	}
	return core.Tool{
		Name:        "update_task_status",
		Description: "Move a task to a new status (todo, in_progress, done).",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"taskId": map[string]any{"type": "string"},
				"status": map[string]any{"type": "string"},
			},
			"required": []string{"taskId", "status"},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, fmt.Errorf("update_task_status args: %w", err)
			}
			if err := ts.Tasks.UpdateTaskStatus(ctx, a.TaskID, a.Status); err != nil {
				return nil, err
			}
			return map[string]any{"taskId": a.TaskID, "status": a.Status}, nil
		},
	}
}

func (ts Toolset) commentTool(job *core.Job) core.Tool {
	type args struct {
		Content string `json:"content"`
		TaskID  string `json:"taskId,omitempty"`
	}
	return core.Tool{
		Name:        "comment_on_task",
		Description: "Add a comment to the task linked to this scheduled job.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{"type": "string"},
				"taskId":  map[string]any{"type": "string"},
			},
			"required": []string{"content"},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, fmt.Errorf("comment_on_task args: %w", err)
			}
			taskID := a.TaskID
			if taskID == "" {
				taskID = job.TaskID
			}
			if taskID == "" {
				return nil, fmt.Errorf("comment_on_task: no task linked to this job")
			}
			c := &core.Comment{
				TaskID:   taskID,
				AuthorID: job.AgentID,
				Content:  a.Content,
			}
			if err := ts.Tasks.AddComment(ctx, c); err != nil {
				return nil, err
			}
			return map[string]any{"commentId": c.ID, "taskId": taskID}, nil
		},
	}
}

func (ts Toolset) scheduleReminderTool(job *core.Job) core.Tool {
	type args struct {
		Message string `json:"message"`
		RunAt   string `json:"runAt"`
	}
	return core.Tool{
		Name:        "schedule_reminder",
		Description: "Schedule a one-shot follow-up reminder for the agent.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"runAt":   map[string]any{"type": "string", "format": "date-time"},
			},
			"required": []string{"message", "runAt"},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, fmt.Errorf("schedule_reminder args: %w", err)
			}
			runAt, err := time.Parse(time.RFC3339, a.RunAt)
			if err != nil {
				return nil, fmt.Errorf("schedule_reminder: bad runAt: %w", err)
			}
			payload, err := core.EncodePayload(&core.Payload{Message: a.Message})
			if err != nil {
				return nil, err
			}
			reminder := &core.Job{
				AgentID:       job.AgentID,
				Title:         "Follow-up: " + job.Title,
				JobType:       core.TypeFollowUp,
				ActionType:    core.ActionNotify,
				ActionPayload: payload,
				ScheduleType:  core.ScheduleOnce,
				RunAt:         &runAt,
				NextRunAt:     &runAt,
				TaskID:        job.TaskID,
			}
			if err := ts.Jobs.CreateJob(ctx, reminder); err != nil {
				return nil, err
			}
			return map[string]any{"jobId": reminder.ID, "runAt": runAt.Format(time.RFC3339)}, nil
		},
	}
}

// contentKey derives a stable dedupe key from the creating agent and the
// task content, so replayed tool calls adopt the already created task.
func contentKey(agentID, title, description string) string {
	sum := sha256.Sum256([]byte(agentID + "\x00" + title + "\x00" + description))
	return hex.EncodeToString(sum[:16])
}
