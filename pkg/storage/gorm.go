package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oakline/schedcore/pkg/core"
	"github.com/oakline/schedcore/pkg/security"
)

// GormStore implements core.JobStore using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed job store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{}, &core.Execution{}, &core.Checkpoint{})
}

// CreateJob persists a new job. Missing identity and lifecycle fields are
// filled with defaults.
func (s *GormStore) CreateJob(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusActive
	}
	if job.RunState == "" {
		job.RunState = core.RunStateIdle
	}
	if job.ScheduleType == "" {
		job.ScheduleType = core.ScheduleOnce
	}
	if job.NextRunAt == nil && job.RunAt != nil {
		job.NextRunAt = job.RunAt
	}
	if err := security.ValidatePayloadSize(job.ActionPayload); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// GetJob retrieves a job by ID, or (nil, nil) when it does not exist.
func (s *GormStore) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListDueJobs returns active, unleased jobs whose next run time has
// arrived, oldest and highest priority first.
func (s *GormStore) ListDueJobs(ctx context.Context, limit int, now time.Time) ([]*core.Job, error) {
	var jobList []*core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", core.StatusActive).
		Where("run_state <> ?", core.RunStateRunning).
		Where("next_run_at IS NOT NULL AND next_run_at <= ?", now).
		Where("(lock_expires_at IS NULL OR lock_expires_at < ?)", now).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&jobList).Error
	return jobList, err
}

// ListJobs returns jobs filtered by status; an empty status matches all.
func (s *GormStore) ListJobs(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobList []*core.Job
	err := q.Find(&jobList).Error
	return jobList, err
}

// Cancel marks a job cancelled. An in-flight execution is allowed to
// finish; the job is never reselected afterward.
func (s *GormStore) Cancel(ctx context.Context, jobID string) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Where("status IN ?", []core.JobStatus{core.StatusActive, core.StatusPaused}).
		Update("status", core.StatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

// ClaimLease acquires a time-bounded claim on a job. The eligibility
// check and the acquisition are one conditional UPDATE, so of two racing
// claimants exactly one sees RowsAffected == 1.
func (s *GormStore) ClaimLease(ctx context.Context, jobID, owner string, ttl time.Duration, now time.Time) (bool, error) {
	expires := now.Add(ttl)
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Where("status = ?", core.StatusActive).
		Where("run_state <> ?", core.RunStateRunning).
		Where("(lock_expires_at IS NULL OR lock_expires_at < ?)", now).
		Updates(map[string]any{
			"locked_by":       owner,
			"lock_expires_at": expires,
			"run_state":       core.RunStateRunning,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseLease clears the lease held by owner. A job still marked
// running goes back to idle so the next cycle can retry it; terminal run
// states set by the workflow are left alone. Releasing a lease that is no
// longer owned is not an error; the job simply stays as it is.
func (s *GormStore) ReleaseLease(ctx context.Context, jobID, owner string) error {
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND run_state = ?", jobID, owner, core.RunStateRunning).
		Update("run_state", core.RunStateIdle).Error
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ?", jobID, owner).
		Updates(map[string]any{
			"locked_by":       "",
			"lock_expires_at": nil,
		}).Error
}

// ReleaseStaleLeases resets jobs whose lease expired without release,
// typically after a process crash mid-execution.
func (s *GormStore) ReleaseStaleLeases(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("run_state = ?", core.RunStateRunning).
		Where("lock_expires_at IS NOT NULL AND lock_expires_at < ?", now).
		Updates(map[string]any{
			"run_state":       core.RunStateIdle,
			"locked_by":       "",
			"lock_expires_at": nil,
		})
	return result.RowsAffected, result.Error
}

// SetRunState records a job's in-flight state. The reason, when given, is
// sanitized and stored as the failure reason.
func (s *GormStore) SetRunState(ctx context.Context, jobID string, state core.RunState, reason string) error {
	updates := map[string]any{"run_state": state}
	if reason != "" {
		updates["failure_reason"] = security.SanitizeErrorMessage(reason)
	}
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

// MarkExecuted advances a job after a successful execution. Once jobs are
// completed; cron jobs get the new next run time and a reset failure
// counter. The conditional update makes a second call with the same
// arguments a no-op, so duplicate advancement cannot happen.
func (s *GormStore) MarkExecuted(ctx context.Context, jobID string, status core.JobStatus, nextRunAt *time.Time) error {
	updates := map[string]any{
		"status":               status,
		"run_state":            core.RunStateIdle,
		"consecutive_failures": 0,
		"failure_reason":       "",
	}
	q := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Where("status = ?", core.StatusActive)
	if status == core.StatusCompleted {
		updates["next_run_at"] = nil
	} else {
		updates["next_run_at"] = nextRunAt
		q = q.Where("(next_run_at IS NULL OR next_run_at < ?)", nextRunAt)
	}
	return q.Updates(updates).Error
}

// AdvanceNextRun moves a cron job to its next occurrence after a failed
// execution that stayed below the breaker threshold.
func (s *GormStore) AdvanceNextRun(ctx context.Context, jobID string, nextRunAt *time.Time, reason string) error {
	updates := map[string]any{
		"next_run_at": nextRunAt,
		"run_state":   core.RunStateIdle,
	}
	if reason != "" {
		updates["failure_reason"] = security.SanitizeErrorMessage(reason)
	}
	return s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Where("status = ?", core.StatusActive).
		Where("(next_run_at IS NULL OR next_run_at < ?)", nextRunAt).
		Updates(updates).Error
}

// IncrementFailure atomically bumps the consecutive failure counter and
// records the sanitized reason, returning the new count.
func (s *GormStore) IncrementFailure(ctx context.Context, jobID string, reason string) (int, error) {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
			"failure_reason":       security.SanitizeErrorMessage(reason),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, core.ErrJobNotFound
	}

	var count int
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Pluck("consecutive_failures", &count).Error
	return count, err
}

// Pause flips an active job to paused so the poller never selects it
// again until it is explicitly reactivated.
func (s *GormStore) Pause(ctx context.Context, jobID string, reason string) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Where("status = ?", core.StatusActive).
		Updates(map[string]any{
			"status":          core.StatusPaused,
			"run_state":       core.RunStateIdle,
			"failure_reason":  security.SanitizeErrorMessage(reason),
			"locked_by":       "",
			"lock_expires_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotActive
	}
	return nil
}

// Reactivate sets a paused job active again with a clean failure slate.
func (s *GormStore) Reactivate(ctx context.Context, jobID string) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Where("status = ?", core.StatusPaused).
		Updates(map[string]any{
			"status":               core.StatusActive,
			"consecutive_failures": 0,
			"failure_reason":       "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

// CreateExecution opens a new execution attempt in the running state.
func (s *GormStore) CreateExecution(ctx context.Context, exec *core.Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	if exec.Status == "" {
		exec.Status = core.ExecRunning
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(exec).Error
}

// GetExecution retrieves an execution by ID, or (nil, nil) when missing.
func (s *GormStore) GetExecution(ctx context.Context, execID string) (*core.Execution, error) {
	var exec core.Execution
	err := s.db.WithContext(ctx).First(&exec, "id = ?", execID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// GetOpenExecution returns the most recent running execution for a job,
// or (nil, nil) when there is none. A resuming workflow re-enters here.
func (s *GormStore) GetOpenExecution(ctx context.Context, jobID string) (*core.Execution, error) {
	var exec core.Execution
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, core.ExecRunning).
		Order("created_at DESC").
		First(&exec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// GetLatestExecution returns the most recent execution for a job in any
// status, or (nil, nil) when the job has never run. Recovery uses it to
// detect a success that was recorded but never advanced the job.
func (s *GormStore) GetLatestExecution(ctx context.Context, jobID string) (*core.Execution, error) {
	var exec core.Execution
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		First(&exec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// FinishExecution transitions an execution from running to a terminal
// state exactly once. Finishing an execution that already reached the
// same terminal state is a no-op; a conflicting transition is an error.
func (s *GormStore) FinishExecution(ctx context.Context, execID string, status core.ExecutionStatus, result []byte, errMsg string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&core.Execution{}).
		Where("id = ?", execID).
		Where("status = ?", core.ExecRunning).
		Updates(map[string]any{
			"status":        status,
			"result_data":   result,
			"error_message": security.SanitizeErrorMessage(errMsg),
			"completed_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := s.GetExecution(ctx, execID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == status {
			return nil
		}
		return core.ErrExecutionFinished
	}
	return nil
}

// SaveCheckpoint stores the durable result of a workflow step.
func (s *GormStore) SaveCheckpoint(ctx context.Context, cp *core.Checkpoint) error {
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(cp).Error
}

// GetCheckpoints retrieves all checkpoints for an execution.
func (s *GormStore) GetCheckpoints(ctx context.Context, executionID string) ([]core.Checkpoint, error) {
	var checkpoints []core.Checkpoint
	err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("created_at ASC").
		Find(&checkpoints).Error
	return checkpoints, err
}

// DeleteCheckpoints removes all checkpoints for an execution.
func (s *GormStore) DeleteCheckpoints(ctx context.Context, executionID string) error {
	return s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Delete(&core.Checkpoint{}).Error
}
