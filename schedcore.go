// Package schedcore provides a scheduled-job execution engine: a
// periodically-polled dispatcher that claims due jobs under a lease,
// runs each through a durable, checkpointed workflow, dispatches to one
// of several action kinds, and pauses jobs that keep failing.
//
// This is the main package users should import. It re-exports the public
// types from the internal pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("jobs.db"), &gorm.Config{})
//	store := schedcore.NewGormStore(db)
//	store.Migrate(context.Background())
//
//	runner := schedcore.NewWorkflowRunner(store, dispatcher, schedcore.NewBreaker(store))
//	p := schedcore.NewPoller(store, runner)
//
//	// Invoke on a fixed interval, e.g. every 5 minutes.
//	result, err := p.Poll(ctx)
package schedcore

import (
	"time"

	"gorm.io/gorm"

	"github.com/oakline/schedcore/pkg/action"
	"github.com/oakline/schedcore/pkg/agent"
	"github.com/oakline/schedcore/pkg/breaker"
	"github.com/oakline/schedcore/pkg/core"
	"github.com/oakline/schedcore/pkg/poller"
	"github.com/oakline/schedcore/pkg/schedule"
	"github.com/oakline/schedcore/pkg/security"
	"github.com/oakline/schedcore/pkg/storage"
	"github.com/oakline/schedcore/pkg/workflow"
)

// Type aliases for the public API surface
type (
	// Job represents a unit of deferred or recurring work.
	Job = core.Job

	// Execution records one attempt to run a job.
	Execution = core.Execution

	// Checkpoint stores the durable result of a workflow step for replay.
	Checkpoint = core.Checkpoint

	// Payload is the action parameter union keyed by action type.
	Payload = core.Payload

	// Result is the uniform outcome of dispatching one action.
	Result = core.Result

	// RunOutcome summarizes one workflow run.
	RunOutcome = core.RunOutcome

	// CycleResult is what one poll cycle returns.
	CycleResult = core.CycleResult

	// JobStatus represents the lifecycle state of a job.
	JobStatus = core.JobStatus

	// JobStore defines the persistence layer for jobs.
	JobStore = core.JobStore

	// AgentRuntime is the external model-calling capability.
	AgentRuntime = core.AgentRuntime

	// Tool is one capability exposed to an agent run.
	Tool = core.Tool

	// Event is the interface for all engine events.
	Event = core.Event

	// GormStore implements JobStore using GORM.
	GormStore = storage.GormStore

	// ProductStore is the GORM-backed conversation/notification/task surface.
	ProductStore = storage.ProductStore

	// Dispatcher routes a job to the handler for its action kind.
	Dispatcher = action.Dispatcher

	// WorkflowRunner executes one job as a checkpointed workflow.
	WorkflowRunner = workflow.Runner

	// Poller selects due jobs and hands them off for execution.
	Poller = poller.Poller

	// Breaker pauses jobs that keep failing.
	Breaker = breaker.Breaker

	// AgentRunner executes bounded agent runs.
	AgentRunner = agent.Runner

	// Schedule defines when a job should run next.
	Schedule = schedule.Schedule
)

// Job status constants
const (
	StatusActive    = core.StatusActive
	StatusPaused    = core.StatusPaused
	StatusCompleted = core.StatusCompleted
	StatusCancelled = core.StatusCancelled
)

// Action kinds
const (
	ActionNotify    = core.ActionNotify
	ActionAgentTask = core.ActionAgentTask
	ActionWebhook   = core.ActionWebhook
)

// Schedule types
const (
	ScheduleOnce = core.ScheduleOnce
	ScheduleCron = core.ScheduleCron
)

// Default limits
const (
	DefaultBatchSize    = poller.DefaultBatchSize
	DefaultLeaseTTL     = workflow.DefaultLeaseTTL
	DefaultMaxToolCalls = agent.DefaultMaxToolCalls
	DefaultMaxTokens    = agent.DefaultMaxTokens
	DefaultThreshold    = breaker.DefaultThreshold
)

// Error variables
var (
	ErrUnknownActionType   = core.ErrUnknownActionType
	ErrInvalidPayload      = core.ErrInvalidPayload
	ErrInvalidSchedule     = core.ErrInvalidSchedule
	ErrJobNotFound         = core.ErrJobNotFound
	ErrToolBudgetExceeded  = core.ErrToolBudgetExceeded
	ErrTokenBudgetExceeded = core.ErrTokenBudgetExceeded
)

// NewGormStore creates a new GORM-backed job store.
func NewGormStore(db *gorm.DB) *GormStore {
	return storage.NewGormStore(db)
}

// NewProductStore creates a new GORM-backed product store.
func NewProductStore(db *gorm.DB) *ProductStore {
	return storage.NewProductStore(db)
}

// NewDispatcher creates an action dispatcher with the given collaborators.
func NewDispatcher(deps action.Deps, opts ...action.Option) *Dispatcher {
	return action.NewDispatcher(deps, opts...)
}

// NewWorkflowRunner creates a workflow runner.
func NewWorkflowRunner(store JobStore, d *Dispatcher, b *Breaker, opts ...workflow.Option) *WorkflowRunner {
	return workflow.NewRunner(store, d, b, opts...)
}

// NewPoller creates a poller over the given store and runner.
func NewPoller(store JobStore, runner poller.WorkflowRunner, opts ...poller.Option) *Poller {
	return poller.New(store, runner, opts...)
}

// NewBreaker creates a failure circuit breaker.
func NewBreaker(store JobStore, opts ...breaker.Option) *Breaker {
	return breaker.New(store, opts...)
}

// NewAgentRunner creates a bounded agent runner over the given runtime.
func NewAgentRunner(runtime AgentRuntime, opts ...agent.Option) *AgentRunner {
	return agent.NewRunner(runtime, opts...)
}

// Schedule helpers

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a UTC schedule from a standard 5-field cron expression.
func Cron(expr string) (Schedule, error) {
	return schedule.Cron(expr)
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}
