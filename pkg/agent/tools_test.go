package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakline/schedcore/pkg/core"
)

type fakeTaskStore struct {
	tasks    map[string]*core.Task
	comments []*core.Comment
	nextID   int
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]*core.Task{}}
}

func (s *fakeTaskStore) GetTask(_ context.Context, taskID string) (*core.Task, error) {
	return s.tasks[taskID], nil
}

func (s *fakeTaskStore) CreateTask(_ context.Context, t *core.Task) error {
	if t.DedupeKey != "" {
		for _, existing := range s.tasks {
			if existing.AgentID == t.AgentID && existing.DedupeKey == t.DedupeKey {
				*t = *existing
				return nil
			}
		}
	}
	s.nextID++
	t.ID = "task-" + time.Now().Format("150405") + "-" + string(rune('a'+s.nextID))
	copied := *t
	s.tasks[t.ID] = &copied
	return nil
}

func (s *fakeTaskStore) UpdateTaskStatus(_ context.Context, taskID, status string) error {
	s.tasks[taskID].Status = status
	return nil
}

func (s *fakeTaskStore) AddComment(_ context.Context, c *core.Comment) error {
	c.ID = "comment-1"
	s.comments = append(s.comments, c)
	return nil
}

type fakeJobStore struct {
	core.JobStore
	created []*core.Job
}

func (s *fakeJobStore) CreateJob(_ context.Context, job *core.Job) error {
	job.ID = "job-new"
	s.created = append(s.created, job)
	return nil
}

type fakeMemory struct {
	queries []string
}

func (m *fakeMemory) Search(_ context.Context, agentID, query string, limit int) ([]core.MemoryHit, error) {
	m.queries = append(m.queries, query)
	return []core.MemoryHit{{ID: "m1", Content: "remembered", Score: 0.9}}, nil
}

func testToolset() (Toolset, *fakeJobStore, *fakeTaskStore, *fakeMemory) {
	jobs := &fakeJobStore{}
	tasks := newFakeTaskStore()
	memory := &fakeMemory{}
	return Toolset{Jobs: jobs, Tasks: tasks, Memory: memory}, jobs, tasks, memory
}

func toolByName(t *testing.T, tools []core.Tool, name string) core.Tool {
	t.Helper()
	for _, tool := range tools {
		if tool.Name == name {
			return tool
		}
	}
	t.Fatalf("tool %q not in toolset", name)
	return core.Tool{}
}

func TestForJob_FixedToolset(t *testing.T) {
	ts, _, _, _ := testToolset()
	tools := ts.ForJob(&core.Job{AgentID: "a1"})

	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	assert.ElementsMatch(t, []string{
		"memory_search", "create_task", "update_task_status", "comment_on_task", "schedule_reminder",
	}, names)
}

func TestMemorySearchTool(t *testing.T) {
	ts, _, _, memory := testToolset()
	tools := ts.ForJob(&core.Job{AgentID: "a1"})
	tool := toolByName(t, tools, "memory_search")

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"deadlines"}`))
	require.NoError(t, err)

	hits, ok := out.([]core.MemoryHit)
	require.True(t, ok)
	require.Len(t, hits, 1)
	assert.Equal(t, "remembered", hits[0].Content)
	assert.Equal(t, []string{"deadlines"}, memory.queries)
}

func TestCreateTaskTool_IdempotentOnReplay(t *testing.T) {
	ts, _, tasks, _ := testToolset()
	tools := ts.ForJob(&core.Job{AgentID: "a1"})
	tool := toolByName(t, tools, "create_task")

	args := json.RawMessage(`{"title":"review PR","description":"the big one"}`)

	first, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	second, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)

	// A replayed call lands on the already created row.
	assert.Equal(t, first, second)
	assert.Len(t, tasks.tasks, 1)
}

func TestCreateTaskTool_RequiresTitle(t *testing.T) {
	ts, _, _, _ := testToolset()
	tool := toolByName(t, ts.ForJob(&core.Job{AgentID: "a1"}), "create_task")

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"description":"no title"}`))
	assert.Error(t, err)
}

func TestCommentTool_DefaultsToLinkedTask(t *testing.T) {
	ts, _, tasks, _ := testToolset()
	job := &core.Job{AgentID: "a1", TaskID: "task-linked"}
	tool := toolByName(t, ts.ForJob(job), "comment_on_task")

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"done half of it"}`))
	require.NoError(t, err)

	require.Len(t, tasks.comments, 1)
	assert.Equal(t, "task-linked", tasks.comments[0].TaskID)
	assert.Equal(t, "a1", tasks.comments[0].AuthorID)
}

func TestCommentTool_NoLinkedTask(t *testing.T) {
	ts, _, _, _ := testToolset()
	tool := toolByName(t, ts.ForJob(&core.Job{AgentID: "a1"}), "comment_on_task")

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"orphan"}`))
	assert.Error(t, err)
}

func TestScheduleReminderTool(t *testing.T) {
	ts, jobs, _, _ := testToolset()
	job := &core.Job{AgentID: "a1", Title: "check invoices", TaskID: "task-9"}
	tool := toolByName(t, ts.ForJob(job), "schedule_reminder")

	runAt := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"message":"ping me","runAt":"`+runAt+`"}`))
	require.NoError(t, err)
	require.NotNil(t, out)

	require.Len(t, jobs.created, 1)
	created := jobs.created[0]
	assert.Equal(t, "a1", created.AgentID)
	assert.Equal(t, core.TypeFollowUp, created.JobType)
	assert.Equal(t, core.ActionNotify, created.ActionType)
	assert.Equal(t, core.ScheduleOnce, created.ScheduleType)
	assert.Equal(t, "task-9", created.TaskID)
	assert.Equal(t, "Follow-up: check invoices", created.Title)

	payload, err := core.DecodePayload(core.ActionNotify, created.ActionPayload)
	require.NoError(t, err)
	assert.Equal(t, "ping me", payload.Message)
}

func TestScheduleReminderTool_BadTime(t *testing.T) {
	ts, _, _, _ := testToolset()
	tool := toolByName(t, ts.ForJob(&core.Job{AgentID: "a1"}), "schedule_reminder")

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"message":"x","runAt":"tomorrow"}`))
	assert.Error(t, err)
}

func TestContentKey_Stable(t *testing.T) {
	a := contentKey("agent", "title", "desc")
	b := contentKey("agent", "title", "desc")
	c := contentKey("agent", "title", "other")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
