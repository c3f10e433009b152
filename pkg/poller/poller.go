package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oakline/schedcore/pkg/core"
	"github.com/oakline/schedcore/pkg/security"
)

// DefaultBatchSize bounds how many jobs one poll cycle claims.
const DefaultBatchSize = 5

// WorkflowRunner executes one job end to end.
type WorkflowRunner interface {
	Run(ctx context.Context, job *core.Job) core.RunOutcome
}

// Poller is the trigger entrypoint, conventionally invoked on a fixed
// interval. Overlapping invocations are safe: the lease, not poller
// exclusivity, prevents double execution.
type Poller struct {
	store  core.JobStore
	runner WorkflowRunner
	batch  int
	logger *slog.Logger
	emit   func(core.Event)
	now    func() time.Time
}

// Option configures a Poller.
type Option func(*Poller)

// BatchSize sets how many due jobs one cycle selects.
// Values are clamped to [1, security.MaxBatchSize].
func BatchSize(n int) Option {
	return func(p *Poller) { p.batch = security.ClampBatchSize(n) }
}

// WithLogger sets the poller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithEmitter sets an event sink for cycle events.
func WithEmitter(emit func(core.Event)) Option {
	return func(p *Poller) { p.emit = emit }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New creates a Poller over the given store and runner.
func New(store core.JobStore, runner WorkflowRunner, opts ...Option) *Poller {
	p := &Poller{
		store:  store,
		runner: runner,
		batch:  DefaultBatchSize,
		logger: slog.Default(),
		emit:   func(core.Event) {},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll runs one cycle: select up to the batch limit of due jobs and run
// each concurrently. One job's failure never blocks or fails the cycle;
// only a store error during selection aborts it. Jobs whose lease turned
// out to be held elsewhere are not counted as processed.
func (p *Poller) Poll(ctx context.Context) (*core.CycleResult, error) {
	now := p.now()
	jobs, err := p.store.ListDueJobs(ctx, p.batch, now)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}

	result := &core.CycleResult{Results: make([]core.RunOutcome, 0, len(jobs))}
	if len(jobs) == 0 {
		p.emit(&core.CycleCompleted{Result: result, Timestamp: p.now()})
		return result, nil
	}

	p.logger.Info("poll cycle selected jobs", "count", len(jobs), "batch", p.batch)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			outcome := p.runJob(gctx, job)
			mu.Lock()
			result.Results = append(result.Results, outcome)
			mu.Unlock()
			// Per-job errors are contained in the outcome; never fail the
			// group so sibling jobs keep running.
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range result.Results {
		if o.Skipped {
			continue
		}
		result.ProcessedCount++
		if o.Success {
			result.SuccessCount++
		}
	}

	p.logger.Info("poll cycle completed",
		"processed", result.ProcessedCount,
		"succeeded", result.SuccessCount,
	)
	p.emit(&core.CycleCompleted{Result: result, Timestamp: p.now()})
	return result, nil
}

// runJob hands one job to the workflow runner, converting a panic into a
// dispatch failure recorded on the job so the cycle continues.
func (p *Poller) runJob(ctx context.Context, job *core.Job) (outcome core.RunOutcome) {
	defer func() {
		if r := recover(); r != nil {
			derr := &core.DispatchError{JobID: job.ID, Err: fmt.Errorf("panic: %v", r)}
			p.logger.Error("job dispatch panicked", "job_id", job.ID, "panic", r)
			if err := p.store.SetRunState(ctx, job.ID, core.RunStateFailed, derr.Error()); err != nil {
				p.logger.Error("mark dispatch failure", "job_id", job.ID, "error", err)
			}
			outcome = core.RunOutcome{JobID: job.ID, Title: job.Title, Error: derr.Error()}
		}
	}()
	return p.runner.Run(ctx, job)
}

// ReleaseStale resets jobs whose lease expired without release, typically
// after a crash mid-execution. Callers run it alongside the poll tick.
func (p *Poller) ReleaseStale(ctx context.Context) (int64, error) {
	n, err := p.store.ReleaseStaleLeases(ctx, p.now())
	if err != nil {
		return 0, fmt.Errorf("release stale leases: %w", err)
	}
	if n > 0 {
		p.logger.Warn("released stale leases", "count", n)
	}
	return n, nil
}
