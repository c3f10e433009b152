package workflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oakline/schedcore/pkg/action"
	"github.com/oakline/schedcore/pkg/agent"
	"github.com/oakline/schedcore/pkg/breaker"
	"github.com/oakline/schedcore/pkg/core"
	"github.com/oakline/schedcore/pkg/storage"
)

type fixture struct {
	db         *gorm.DB
	store      *storage.GormStore
	product    *storage.ProductStore
	dispatcher *action.Dispatcher
	runner     *Runner
}

func (fx *fixture) countMessages(t *testing.T, conversationID string) int64 {
	t.Helper()
	var n int64
	err := fx.db.Model(&core.Message{}).Where("conversation_id = ?", conversationID).Count(&n).Error
	require.NoError(t, err)
	return n
}

type noAgents struct{}

func (noAgents) GetAgent(_ context.Context, agentID string) (*core.AgentProfile, error) {
	return &core.AgentProfile{ID: agentID}, nil
}

type noMemory struct{}

func (noMemory) Search(context.Context, string, string, int) ([]core.MemoryHit, error) {
	return nil, nil
}

func newFixture(t *testing.T, client *http.Client, brkOpts ...breaker.Option) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	ctx := context.Background()
	store := storage.NewGormStore(db)
	require.NoError(t, store.Migrate(ctx))
	product := storage.NewProductStore(db)
	require.NoError(t, product.Migrate(ctx))

	brk := breaker.New(store, brkOpts...)
	dispatcher := action.NewDispatcher(action.Deps{
		Conversations: product,
		Notifications: product,
		Tasks:         product,
		Agents:        noAgents{},
		AgentRunner:   agent.NewRunner(agent.Unconfigured()),
		AgentTools:    agent.Toolset{Jobs: store, Tasks: product, Memory: noMemory{}},
		HTTPClient:    client,
	})
	runner := NewRunner(store, dispatcher, brk, WithRunnerID("test-runner"))
	return &fixture{db: db, store: store, product: product, dispatcher: dispatcher, runner: runner}
}

func (fx *fixture) createNotifyJob(t *testing.T, mutate func(*core.Job)) *core.Job {
	t.Helper()
	payload, err := core.EncodePayload(&core.Payload{Message: "ping"})
	require.NoError(t, err)
	due := time.Now().Add(-time.Minute)
	job := &core.Job{
		AgentID:       "agent-1",
		Title:         "notify job",
		ActionType:    core.ActionNotify,
		ActionPayload: payload,
		NextRunAt:     &due,
	}
	if mutate != nil {
		mutate(job)
	}
	require.NoError(t, fx.store.CreateJob(context.Background(), job))
	return job
}

func TestRun_OnceJobSuccess(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	job := fx.createNotifyJob(t, nil)

	outcome := fx.runner.Run(ctx, job)

	assert.True(t, outcome.Success, "error: %s", outcome.Error)
	assert.False(t, outcome.Skipped)

	got, err := fx.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Nil(t, got.NextRunAt)
	assert.Equal(t, core.RunStateIdle, got.RunState)
	assert.Empty(t, got.LockedBy)

	exec, err := fx.store.GetOpenExecution(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, exec, "execution must be closed")

	conv, err := fx.product.FindOrCreateActiveConversation(ctx, "agent-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, fx.countMessages(t, conv.ID))
}

func TestRun_CronJobAdvances(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)
	job := fx.createNotifyJob(t, func(j *core.Job) {
		j.ScheduleType = core.ScheduleCron
		j.CronExpr = "*/5 * * * *"
		j.NextRunAt = &past
	})

	outcome := fx.runner.Run(ctx, job)
	require.True(t, outcome.Success, "error: %s", outcome.Error)

	got, err := fx.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, got.Status)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(time.Now()), "next run must be in the future")
}

func TestRun_FailureFeedsBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	fx := newFixture(t, srv.Client())
	ctx := context.Background()
	payload, err := core.EncodePayload(&core.Payload{URL: srv.URL})
	require.NoError(t, err)
	due := time.Now().Add(-time.Minute)
	job := &core.Job{
		AgentID:       "agent-1",
		Title:         "webhook job",
		ActionType:    core.ActionWebhook,
		ActionPayload: payload,
		NextRunAt:     &due,
	}
	require.NoError(t, fx.store.CreateJob(ctx, job))

	outcome := fx.runner.Run(ctx, job)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "500")

	got, err := fx.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, got.Status)
	assert.Equal(t, 1, got.ConsecutiveFailures)
	assert.Equal(t, core.RunStateFailed, got.RunState)
	assert.Contains(t, got.FailureReason, "500")
}

func TestRun_RepeatedFailuresPauseJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	fx := newFixture(t, srv.Client(), breaker.WithThreshold(2))
	ctx := context.Background()
	payload, err := core.EncodePayload(&core.Payload{URL: srv.URL})
	require.NoError(t, err)
	due := time.Now().Add(-time.Minute)
	job := &core.Job{
		AgentID:       "agent-1",
		ActionType:    core.ActionWebhook,
		ActionPayload: payload,
		ScheduleType:  core.ScheduleCron,
		CronExpr:      "* * * * *",
		NextRunAt:     &due,
	}
	require.NoError(t, fx.store.CreateJob(ctx, job))

	first := fx.runner.Run(ctx, job)
	assert.False(t, first.Success)

	// Below the threshold the job stays active with its schedule advanced.
	fresh, err := fx.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusActive, fresh.Status)
	require.NotNil(t, fresh.NextRunAt)
	assert.True(t, fresh.NextRunAt.After(time.Now()))

	second := fx.runner.Run(ctx, job)
	assert.False(t, second.Success)

	got, err := fx.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaused, got.Status)
	assert.Equal(t, 2, got.ConsecutiveFailures)
}

func TestRun_HeldLeaseSkips(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	job := fx.createNotifyJob(t, nil)

	claimed, err := fx.store.ClaimLease(ctx, job.ID, "another-runner", 10*time.Minute, time.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	outcome := fx.runner.Run(ctx, job)

	assert.True(t, outcome.Skipped)
	assert.False(t, outcome.Success)
	assert.Empty(t, outcome.Error)

	// The other runner's lease is untouched.
	got, err := fx.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "another-runner", got.LockedBy)
}

func TestRun_CheckpointReplayDoesNotRepeatSideEffect(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	job := fx.createNotifyJob(t, nil)

	// Simulate a crash after the dispatch step was checkpointed but
	// before the job was advanced: an open execution with a recorded
	// success checkpoint, lease already expired.
	exec := &core.Execution{JobID: job.ID, AgentID: job.AgentID}
	require.NoError(t, fx.store.CreateExecution(ctx, exec))
	require.NoError(t, fx.store.SaveCheckpoint(ctx, &core.Checkpoint{
		ExecutionID: exec.ID,
		JobID:       job.ID,
		Step:        "dispatch",
		Result:      []byte(`{"success":true,"data":{"conversationId":"conv-prior"}}`),
	}))

	outcome := fx.runner.Run(ctx, job)
	require.True(t, outcome.Success, "error: %s", outcome.Error)

	// The recorded result was replayed; dispatch never ran, so no
	// message landed in any conversation.
	conv, err := fx.product.FindOrCreateActiveConversation(ctx, "agent-1")
	require.NoError(t, err)
	assert.Zero(t, fx.countMessages(t, conv.ID))

	got, err := fx.store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ExecSuccess, got.Status)
}

func TestRun_FailedCheckpointReplays(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	job := fx.createNotifyJob(t, nil)

	exec := &core.Execution{JobID: job.ID, AgentID: job.AgentID}
	require.NoError(t, fx.store.CreateExecution(ctx, exec))
	require.NoError(t, fx.store.SaveCheckpoint(ctx, &core.Checkpoint{
		ExecutionID: exec.ID,
		JobID:       job.ID,
		Step:        "dispatch",
		Error:       "wedged downstream",
	}))

	outcome := fx.runner.Run(ctx, job)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "wedged downstream")
}

// advanceDroppingStore loses the first job advancement after an
// execution finishes, the way a crash between the two writes would.
type advanceDroppingStore struct {
	core.JobStore
	dropped bool
}

func (s *advanceDroppingStore) MarkExecuted(ctx context.Context, jobID string, status core.JobStatus, nextRunAt *time.Time) error {
	if !s.dropped {
		s.dropped = true
		return errors.New("connection reset")
	}
	return s.JobStore.MarkExecuted(ctx, jobID, status, nextRunAt)
}

func TestRun_LostAdvancementDoesNotRedispatch(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	job := fx.createNotifyJob(t, nil)

	flaky := &advanceDroppingStore{JobStore: fx.store}
	crashed := NewRunner(flaky, fx.dispatcher, breaker.New(flaky), WithRunnerID("test-runner"))

	// The action runs and the execution closes as a success, but the job
	// row is never advanced.
	first := crashed.Run(ctx, job)
	assert.False(t, first.Success)
	assert.Contains(t, first.Error, "mark executed")

	conv, err := fx.product.FindOrCreateActiveConversation(ctx, "agent-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, fx.countMessages(t, conv.ID))

	still, err := fx.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusActive, still.Status)
	require.NotNil(t, still.NextRunAt)

	// A later poll picks the still-due job back up. The recorded success
	// must be honored: no second notification, only the advancement.
	second := fx.runner.Run(ctx, still)
	assert.True(t, second.Success, "error: %s", second.Error)

	assert.EqualValues(t, 1, fx.countMessages(t, conv.ID))

	got, err := fx.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Nil(t, got.NextRunAt)
}

func TestRun_EmitsLifecycleEvents(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	job := fx.createNotifyJob(t, nil)

	var events []core.Event
	WithEmitter(func(e core.Event) { events = append(events, e) })(fx.runner)

	outcome := fx.runner.Run(ctx, job)
	require.True(t, outcome.Success)

	require.Len(t, events, 2)
	_, ok := events[0].(*core.ExecutionStarted)
	assert.True(t, ok)
	_, ok = events[1].(*core.ExecutionCompleted)
	assert.True(t, ok)
}
