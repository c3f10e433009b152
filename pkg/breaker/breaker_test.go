package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oakline/schedcore/pkg/core"
	"github.com/oakline/schedcore/pkg/storage"
)

func newStore(t *testing.T) *storage.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	store := storage.NewGormStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func createJob(t *testing.T, store *storage.GormStore, mutate func(*core.Job)) *core.Job {
	t.Helper()
	due := time.Now().Add(-time.Minute)
	job := &core.Job{
		AgentID:    "agent-1",
		Title:      "flaky job",
		ActionType: core.ActionWebhook,
		NextRunAt:  &due,
	}
	if mutate != nil {
		mutate(job)
	}
	require.NoError(t, store.CreateJob(context.Background(), job))
	return job
}

func TestRecordFailure_BelowThreshold(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	job := createJob(t, store, nil)

	b := New(store, WithThreshold(3))

	paused, err := b.RecordFailure(ctx, job, errors.New("connection refused"))
	require.NoError(t, err)
	assert.False(t, paused)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, got.Status)
	assert.Equal(t, 1, got.ConsecutiveFailures)
	assert.Equal(t, "connection refused", got.FailureReason)
	assert.Equal(t, core.RunStateFailed, got.RunState)
}

func TestRecordFailure_TripsAtThreshold(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	job := createJob(t, store, nil)

	var events []core.Event
	b := New(store, WithThreshold(3), WithEmitter(func(e core.Event) { events = append(events, e) }))

	for i := 0; i < 2; i++ {
		paused, err := b.RecordFailure(ctx, job, errors.New("boom"))
		require.NoError(t, err)
		assert.False(t, paused, "failure %d must not trip", i+1)
	}

	paused, err := b.RecordFailure(ctx, job, errors.New("boom"))
	require.NoError(t, err)
	assert.True(t, paused)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaused, got.Status)
	assert.Equal(t, 3, got.ConsecutiveFailures)

	require.Len(t, events, 1)
	pausedEvt, ok := events[0].(*core.JobPaused)
	require.True(t, ok)
	assert.Equal(t, 3, pausedEvt.Failures)
}

func TestRecordFailure_CronAdvancesBelowThreshold(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)
	job := createJob(t, store, func(j *core.Job) {
		j.ScheduleType = core.ScheduleCron
		j.CronExpr = "0 9 * * *"
		j.NextRunAt = &past
	})

	b := New(store)

	paused, err := b.RecordFailure(ctx, job, errors.New("flaky"))
	require.NoError(t, err)
	assert.False(t, paused)

	// A failed cron run still moves to the next occurrence, so one bad
	// morning never wedges the schedule.
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(time.Now()))
	assert.Equal(t, core.RunStateIdle, got.RunState)
	assert.Equal(t, 1, got.ConsecutiveFailures)
}

func TestRecordFailure_BadCronExprDoesNotError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	job := createJob(t, store, func(j *core.Job) {
		j.ScheduleType = core.ScheduleCron
		j.CronExpr = "not a cron"
	})

	b := New(store)

	paused, err := b.RecordFailure(ctx, job, errors.New("boom"))
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestRecordFailure_MissingJob(t *testing.T) {
	store := newStore(t)
	b := New(store)

	job := &core.Job{ID: "ghost"}
	_, err := b.RecordFailure(context.Background(), job, errors.New("x"))
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestReactivate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	job := createJob(t, store, nil)

	var events []core.Event
	b := New(store, WithThreshold(1), WithEmitter(func(e core.Event) { events = append(events, e) }))

	paused, err := b.RecordFailure(ctx, job, errors.New("boom"))
	require.NoError(t, err)
	require.True(t, paused)

	require.NoError(t, b.Reactivate(ctx, job.ID))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, got.Status)
	assert.Zero(t, got.ConsecutiveFailures)
	assert.Empty(t, got.FailureReason)

	require.Len(t, events, 2)
	_, ok := events[1].(*core.JobReactivated)
	assert.True(t, ok)
}
