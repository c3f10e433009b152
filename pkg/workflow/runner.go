package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oakline/schedcore/pkg/action"
	"github.com/oakline/schedcore/pkg/breaker"
	"github.com/oakline/schedcore/pkg/core"
	"github.com/oakline/schedcore/pkg/schedule"
)

// DefaultLeaseTTL is how long one workflow run may hold a job before the
// lease is considered stale.
const DefaultLeaseTTL = 10 * time.Minute

const stepDispatch = "dispatch"

// Runner executes a single job's action as a checkpointed workflow:
// claim the lease, open (or re-enter) an execution, dispatch, record the
// outcome, then advance the job or feed the circuit breaker.
type Runner struct {
	store      core.JobStore
	dispatcher *action.Dispatcher
	breaker    *breaker.Breaker
	runnerID   string
	leaseTTL   time.Duration
	logger     *slog.Logger
	emit       func(core.Event)
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLeaseTTL sets the lease duration for claimed jobs.
func WithLeaseTTL(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.leaseTTL = d
		}
	}
}

// WithRunnerID overrides the generated runner identity.
func WithRunnerID(id string) Option {
	return func(r *Runner) { r.runnerID = id }
}

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithEmitter sets an event sink for execution events.
func WithEmitter(emit func(core.Event)) Option {
	return func(r *Runner) { r.emit = emit }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a workflow runner.
func NewRunner(store core.JobStore, dispatcher *action.Dispatcher, brk *breaker.Breaker, opts ...Option) *Runner {
	r := &Runner{
		store:      store,
		dispatcher: dispatcher,
		breaker:    brk,
		runnerID:   uuid.New().String(),
		leaseTTL:   DefaultLeaseTTL,
		logger:     slog.Default(),
		emit:       func(core.Event) {},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunnerID returns the identity this runner claims leases under.
func (r *Runner) RunnerID() string {
	return r.runnerID
}

// Run executes one job end to end. The lease is acquired here, at
// execution start, so a job is never claimed without actually starting;
// the claim and the eligibility check are one atomic store update. A job
// whose lease is already held is reported as skipped, not failed.
func (r *Runner) Run(ctx context.Context, job *core.Job) core.RunOutcome {
	outcome := core.RunOutcome{JobID: job.ID, Title: job.Title}
	startedAt := r.now()

	claimed, err := r.store.ClaimLease(ctx, job.ID, r.runnerID, r.leaseTTL, startedAt)
	if err != nil {
		// Store trouble is transient: the next cycle retries without
		// touching the failure counter.
		outcome.Error = fmt.Sprintf("claim lease: %v", err)
		return outcome
	}
	if !claimed {
		outcome.Skipped = true
		return outcome
	}
	defer func() {
		if err := r.store.ReleaseLease(ctx, job.ID, r.runnerID); err != nil {
			r.logger.Error("release lease", "job_id", job.ID, "error", err)
		}
	}()

	exec, err := r.store.GetOpenExecution(ctx, job.ID)
	if err != nil {
		outcome.Error = fmt.Sprintf("open execution: %v", err)
		return outcome
	}
	if exec == nil {
		// A crash between recording a success and advancing the job
		// leaves the job due with a terminal execution. Honor that
		// recorded success instead of dispatching the action again.
		recovered, err := r.recoverUnadvanced(ctx, job)
		if err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		if recovered {
			outcome.Success = true
			return outcome
		}

		exec = &core.Execution{
			JobID:     job.ID,
			AgentID:   job.AgentID,
			Status:    core.ExecRunning,
			StartedAt: startedAt,
		}
		if err := r.store.CreateExecution(ctx, exec); err != nil {
			outcome.Error = fmt.Sprintf("open execution: %v", err)
			return outcome
		}
	} else {
		r.logger.Info("resuming open execution", "job_id", job.ID, "execution_id", exec.ID)
	}
	r.emit(&core.ExecutionStarted{Job: job, Execution: exec, Timestamp: startedAt})

	st, err := loadStepState(ctx, r.store, exec.ID)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	// The dispatch step is checkpointed: on re-entry after a crash the
	// recorded result is replayed and the side effect is not repeated.
	result, err := runStep(ctx, r.store, exec, st, stepDispatch, func() (core.Result, error) {
		return r.dispatcher.Dispatch(ctx, job), nil
	})
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	if result.Success {
		if err := r.finishSuccess(ctx, job, exec, result); err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		r.emit(&core.ExecutionCompleted{
			Job:       job,
			Execution: exec,
			Duration:  r.now().Sub(startedAt),
			Timestamp: r.now(),
		})
		outcome.Success = true
		return outcome
	}

	actionErr := errors.New(result.Error)
	if err := r.finishFailure(ctx, job, exec, actionErr); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	r.emit(&core.ExecutionFailed{Job: job, Execution: exec, Error: actionErr, Timestamp: r.now()})
	outcome.Error = result.Error
	return outcome
}

// recoverUnadvanced handles the crash window between finishing an
// execution and advancing the job. The signature is a latest execution
// that already reached success before the job's due time moved past its
// completion. The success stands, only the advancement is redone.
func (r *Runner) recoverUnadvanced(ctx context.Context, job *core.Job) (bool, error) {
	last, err := r.store.GetLatestExecution(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("load latest execution: %w", err)
	}
	if last == nil || last.Status != core.ExecSuccess || last.CompletedAt == nil {
		return false, nil
	}
	if job.NextRunAt == nil || job.NextRunAt.After(*last.CompletedAt) {
		return false, nil
	}
	r.logger.Warn("advancing job past already-successful execution",
		"job_id", job.ID, "execution_id", last.ID)
	if err := r.advanceJob(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Runner) finishSuccess(ctx context.Context, job *core.Job, exec *core.Execution, result core.Result) error {
	var resultData []byte
	if len(result.Data) > 0 {
		var err error
		resultData, err = json.Marshal(result.Data)
		if err != nil {
			return fmt.Errorf("marshal result data: %w", err)
		}
	}
	if err := r.store.FinishExecution(ctx, exec.ID, core.ExecSuccess, resultData, ""); err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	return r.advanceJob(ctx, job)
}

// advanceJob settles the job row after a successful execution: once jobs
// complete, cron jobs move to their next occurrence.
func (r *Runner) advanceJob(ctx context.Context, job *core.Job) error {
	status := core.StatusCompleted
	var next *time.Time
	if job.ScheduleType == core.ScheduleCron {
		status = core.StatusActive
		var err error
		next, err = schedule.NextRun(job, r.now())
		if err != nil {
			// The action succeeded but the schedule is unusable; route the
			// broken descriptor through the breaker like any other failure.
			if _, brkErr := r.breaker.RecordFailure(ctx, job, err); brkErr != nil {
				return brkErr
			}
			return nil
		}
	}
	if err := r.store.MarkExecuted(ctx, job.ID, status, next); err != nil {
		return fmt.Errorf("mark executed: %w", err)
	}
	return nil
}

func (r *Runner) finishFailure(ctx context.Context, job *core.Job, exec *core.Execution, actionErr error) error {
	if err := r.store.FinishExecution(ctx, exec.ID, core.ExecFailed, nil, actionErr.Error()); err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	r.logger.Warn("job execution failed",
		"job_id", job.ID,
		"execution_id", exec.ID,
		"action", job.ActionType,
		"error", actionErr,
	)
	if _, err := r.breaker.RecordFailure(ctx, job, actionErr); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}
