package core

import "time"

// Event is the interface for all engine events.
type Event interface {
	eventMarker()
}

// ExecutionStarted is emitted when a workflow claims a job and opens an
// execution.
type ExecutionStarted struct {
	Job       *Job
	Execution *Execution
	Timestamp time.Time
}

func (*ExecutionStarted) eventMarker() {}

// ExecutionCompleted is emitted when an execution finishes successfully.
type ExecutionCompleted struct {
	Job       *Job
	Execution *Execution
	Duration  time.Duration
	Timestamp time.Time
}

func (*ExecutionCompleted) eventMarker() {}

// ExecutionFailed is emitted when an execution finishes in failure.
type ExecutionFailed struct {
	Job       *Job
	Execution *Execution
	Error     error
	Timestamp time.Time
}

func (*ExecutionFailed) eventMarker() {}

// JobPaused is emitted when the circuit breaker flips a job to paused.
type JobPaused struct {
	Job       *Job
	Failures  int
	Reason    string
	Timestamp time.Time
}

func (*JobPaused) eventMarker() {}

// JobReactivated is emitted when a paused job is set active again.
type JobReactivated struct {
	JobID     string
	Timestamp time.Time
}

func (*JobReactivated) eventMarker() {}

// CycleCompleted is emitted at the end of each poll cycle.
type CycleCompleted struct {
	Result    *CycleResult
	Timestamp time.Time
}

func (*CycleCompleted) eventMarker() {}
