package core

import (
	"time"
)

// JobStatus represents the lifecycle state of a scheduled job.
type JobStatus string

const (
	StatusActive    JobStatus = "active"
	StatusPaused    JobStatus = "paused"    // Tripped breaker or manual pause, never selected
	StatusCompleted JobStatus = "completed" // Terminal state for once jobs
	StatusCancelled JobStatus = "cancelled" // Terminated by the owner
)

// JobType classifies why a job exists.
type JobType string

const (
	TypeReminder  JobType = "reminder"
	TypeFollowUp  JobType = "follow_up"
	TypeRecurring JobType = "recurring"
	TypeOneTime   JobType = "one_time"
)

// ActionType selects which handler executes a job.
type ActionType string

const (
	ActionNotify    ActionType = "notify"
	ActionAgentTask ActionType = "agent_task"
	ActionWebhook   ActionType = "webhook"
)

// ScheduleType determines how the next run time is computed.
type ScheduleType string

const (
	ScheduleOnce ScheduleType = "once"
	ScheduleCron ScheduleType = "cron"
)

// RunState mirrors the in-flight status of a job's current execution.
type RunState string

const (
	RunStateIdle    RunState = "idle"
	RunStateRunning RunState = "running"
	RunStateFailed  RunState = "failed"
)

// Job represents a unit of deferred or recurring work with a schedule
// and an action.
type Job struct {
	ID      string `gorm:"primaryKey;size:36"`
	AgentID string `gorm:"index;size:36;not null"`
	Title   string `gorm:"size:255"`

	JobType       JobType    `gorm:"size:20;default:'one_time'"`
	ActionType    ActionType `gorm:"index;size:20;not null"`
	ActionPayload []byte     `gorm:"type:bytes"`

	ScheduleType ScheduleType `gorm:"size:10;default:'once'"`
	CronExpr     string       `gorm:"size:120"`
	Timezone     string       `gorm:"size:64"`
	RunAt        *time.Time
	NextRunAt    *time.Time `gorm:"index"`
	Priority     int        `gorm:"index;default:0"`

	Status   JobStatus `gorm:"index;size:20;default:'active'"`
	RunState RunState  `gorm:"size:10;default:'idle'"`

	// Lease fields. A non-nil unexpired LockExpiresAt means a runner
	// holds the job; leasing survives process restarts because it is a
	// row, not an in-process lock.
	LockedBy      string     `gorm:"size:255"`
	LockExpiresAt *time.Time `gorm:"index"`

	ConsecutiveFailures int    `gorm:"default:0"`
	FailureReason       string `gorm:"type:text"`

	// TaskID links the job to a task in the surrounding product, used to
	// enrich notify messages and scope agent tool calls.
	TaskID string `gorm:"index;size:36"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Due reports whether the job is eligible for selection at the given time.
func (j *Job) Due(now time.Time) bool {
	if j.Status != StatusActive || j.RunState == RunStateRunning {
		return false
	}
	if j.NextRunAt == nil || j.NextRunAt.After(now) {
		return false
	}
	return j.LockExpiresAt == nil || j.LockExpiresAt.Before(now)
}
