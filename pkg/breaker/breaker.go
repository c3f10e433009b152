package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oakline/schedcore/pkg/core"
	"github.com/oakline/schedcore/pkg/schedule"
)

// DefaultThreshold is the consecutive-failure count that pauses a job.
const DefaultThreshold = 5

// Breaker tracks consecutive failures per job and flips a job to paused
// once the threshold is reached.
type Breaker struct {
	store     core.JobStore
	threshold int
	logger    *slog.Logger
	emit      func(core.Event)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithThreshold sets the consecutive-failure ceiling.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithLogger sets the breaker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

// WithEmitter sets an event sink for pause/reactivate events.
func WithEmitter(emit func(core.Event)) Option {
	return func(b *Breaker) { b.emit = emit }
}

// New creates a Breaker over the given store.
func New(store core.JobStore, opts ...Option) *Breaker {
	b := &Breaker{
		store:     store,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
		emit:      func(core.Event) {},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Threshold returns the configured consecutive-failure ceiling.
func (b *Breaker) Threshold() int {
	return b.threshold
}

// RecordFailure increments the job's failure counter and pauses it at the
// threshold. Below the threshold a cron job is advanced to its next
// occurrence; a once job is left for manual retry. Returns whether the
// job was paused.
func (b *Breaker) RecordFailure(ctx context.Context, job *core.Job, cause error) (bool, error) {
	reason := "unknown failure"
	if cause != nil {
		reason = cause.Error()
	}

	count, err := b.store.IncrementFailure(ctx, job.ID, reason)
	if err != nil {
		return false, err
	}

	if count >= b.threshold {
		if err := b.store.Pause(ctx, job.ID, reason); err != nil {
			// A concurrent pause or cancel already removed the job from
			// rotation; nothing left to do.
			if errors.Is(err, core.ErrJobNotActive) {
				return true, nil
			}
			return false, err
		}
		b.logger.Warn("circuit breaker tripped",
			"job_id", job.ID,
			"failures", count,
			"reason", reason,
		)
		b.emit(&core.JobPaused{Job: job, Failures: count, Reason: reason, Timestamp: time.Now()})
		return true, nil
	}

	if job.ScheduleType == core.ScheduleCron {
		next, schedErr := schedule.NextRun(job, time.Now())
		if schedErr != nil {
			// The schedule itself is broken; that will surface as the next
			// failure and eventually trip the breaker.
			b.logger.Error("cannot advance failed cron job", "job_id", job.ID, "error", schedErr)
			return false, nil
		}
		if err := b.store.AdvanceNextRun(ctx, job.ID, next, reason); err != nil {
			return false, err
		}
	} else if err := b.store.SetRunState(ctx, job.ID, core.RunStateFailed, reason); err != nil {
		return false, err
	}

	b.logger.Info("job failure recorded",
		"job_id", job.ID,
		"failures", count,
		"threshold", b.threshold,
	)
	return false, nil
}

// Reactivate sets a paused job active again and resets its failure
// counter to zero.
func (b *Breaker) Reactivate(ctx context.Context, jobID string) error {
	if err := b.store.Reactivate(ctx, jobID); err != nil {
		return err
	}
	b.emit(&core.JobReactivated{JobID: jobID, Timestamp: time.Now()})
	return nil
}
