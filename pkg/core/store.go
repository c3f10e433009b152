package core

import (
	"context"
	"time"
)

// JobStore defines the persistence layer for jobs, executions, and step
// checkpoints.
type JobStore interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Job lifecycle
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	ListDueJobs(ctx context.Context, limit int, now time.Time) ([]*Job, error)
	ListJobs(ctx context.Context, status JobStatus, limit int) ([]*Job, error)
	Cancel(ctx context.Context, jobID string) error

	// Leasing. ClaimLease is a single atomic conditional update; exactly
	// one of two racing claimants succeeds.
	ClaimLease(ctx context.Context, jobID, owner string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, jobID, owner string) error
	ReleaseStaleLeases(ctx context.Context, now time.Time) (int64, error)

	// State transitions
	SetRunState(ctx context.Context, jobID string, state RunState, reason string) error
	MarkExecuted(ctx context.Context, jobID string, status JobStatus, nextRunAt *time.Time) error
	AdvanceNextRun(ctx context.Context, jobID string, nextRunAt *time.Time, reason string) error
	IncrementFailure(ctx context.Context, jobID string, reason string) (int, error)
	Pause(ctx context.Context, jobID string, reason string) error
	Reactivate(ctx context.Context, jobID string) error

	// Executions
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, execID string) (*Execution, error)
	GetOpenExecution(ctx context.Context, jobID string) (*Execution, error)
	GetLatestExecution(ctx context.Context, jobID string) (*Execution, error)
	FinishExecution(ctx context.Context, execID string, status ExecutionStatus, result []byte, errMsg string) error

	// Checkpointing
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	GetCheckpoints(ctx context.Context, executionID string) ([]Checkpoint, error)
	DeleteCheckpoints(ctx context.Context, executionID string) error
}

// ConversationStore resolves conversations and inserts messages for the
// notify and agent_task actions.
type ConversationStore interface {
	FindOrCreateActiveConversation(ctx context.Context, agentID string) (*Conversation, error)
	CreateConversation(ctx context.Context, agentID, title string) (*Conversation, error)
	InsertMessage(ctx context.Context, conversationID, role, content string, metadata map[string]any) (*Message, error)
}

// NotificationSink delivers user-facing notifications.
type NotificationSink interface {
	CreateNotification(ctx context.Context, n *Notification) error
}

// TaskStore is the task surface exposed to actions and agent tools.
// CreateTask deduplicates on DedupeKey so replayed tool calls are
// idempotent.
type TaskStore interface {
	GetTask(ctx context.Context, taskID string) (*Task, error)
	CreateTask(ctx context.Context, t *Task) error
	UpdateTaskStatus(ctx context.Context, taskID, status string) error
	AddComment(ctx context.Context, c *Comment) error
}

// MemorySearcher is the external embedding/search subsystem, consumed as
// an opaque capability.
type MemorySearcher interface {
	Search(ctx context.Context, agentID, query string, limit int) ([]MemoryHit, error)
}

// AgentDirectory resolves agent identity for the agent_task action.
type AgentDirectory interface {
	GetAgent(ctx context.Context, agentID string) (*AgentProfile, error)
}
