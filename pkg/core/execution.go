package core

import (
	"time"
)

// ExecutionStatus represents the state of one execution attempt.
type ExecutionStatus string

const (
	ExecRunning ExecutionStatus = "running"
	ExecSuccess ExecutionStatus = "success"
	ExecFailed  ExecutionStatus = "failed"
)

// Execution records one attempt to run a job. It is created in the
// running state before any step executes and transitions exactly once to
// a terminal state. An open running execution is the anchor a resuming
// workflow looks for after a crash.
type Execution struct {
	ID      string `gorm:"primaryKey;size:36"`
	JobID   string `gorm:"index;size:36;not null"`
	AgentID string `gorm:"size:36"`

	Status       ExecutionStatus `gorm:"index;size:10;default:'running'"`
	ResultData   []byte          `gorm:"type:bytes"`
	ErrorMessage string          `gorm:"type:text"`

	StartedAt   time.Time
	CompletedAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Terminal reports whether the execution has reached a final state.
func (e *Execution) Terminal() bool {
	return e.Status == ExecSuccess || e.Status == ExecFailed
}

// Checkpoint stores the durable result of a workflow step for replay.
// A step whose checkpoint exists is not re-executed on resume.
type Checkpoint struct {
	ID          string    `gorm:"primaryKey;size:36"`
	ExecutionID string    `gorm:"index;size:36;not null"`
	JobID       string    `gorm:"index;size:36;not null"`
	Step        string    `gorm:"size:64;not null"`
	Result      []byte    `gorm:"type:bytes"`
	Error       string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}
