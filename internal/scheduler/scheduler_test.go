package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmith/playbookpilot/internal/cache"
	"github.com/opsmith/playbookpilot/internal/queue"
	"github.com/opsmith/playbookpilot/internal/scheduler"
	"github.com/opsmith/playbookpilot/internal/store"
	"github.com/opsmith/playbookpilot/pkg/models"
)

// memStore is an in-memory store.Store honoring the task state machine.
type memStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[uuid.UUID]*models.Task)}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) CreateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *memStore) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (m *memStore) GetTaskByQueueJob(_ context.Context, jobID string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		if task.QueueJobID != nil && *task.QueueJobID == jobID {
			cp := *task
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListTasks(context.Context) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		cp := *task
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) ListTasksByStatus(_ context.Context, status string) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, task := range m.tasks {
		if task.Status == status {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) TransitionTask(_ context.Context, id uuid.UUID, from, to string, opts ...store.TaskUpdateOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	if task.Status != from {
		return store.ErrInvalidTransition
	}
	task.Status = to
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) SetTaskQueueJob(_ context.Context, id uuid.UUID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	task.QueueJobID = &jobID
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memStore) CreateTemplate(context.Context, *models.Template) error { return nil }
func (m *memStore) GetTemplate(context.Context, uuid.UUID, bool) (*models.Template, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) GetTemplateByName(context.Context, string) (*models.Template, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) ListTemplates(context.Context, bool) ([]*models.Template, error) {
	return nil, nil
}
func (m *memStore) UpdateTemplate(context.Context, *models.Template) error { return nil }
func (m *memStore) SoftDeleteTemplate(context.Context, uuid.UUID) error    { return nil }

var _ store.Store = (*memStore)(nil)

// memQueue is an in-memory queue.Queue.
type memQueue struct {
	mu         sync.Mutex
	jobs       map[string]queue.Job
	enqueueErr error
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: make(map[string]queue.Job)}
}

func (q *memQueue) Enqueue(_ context.Context, taskID uuid.UUID, runAt time.Time) (string, error) {
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	jobID := uuid.New().String()
	q.jobs[jobID] = queue.Job{ID: jobID, TaskID: taskID, RunAt: runAt}
	return jobID, nil
}

func (q *memQueue) Revoke(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[jobID]; !ok {
		return false, nil
	}
	delete(q.jobs, jobID)
	return true, nil
}

func (q *memQueue) Known(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.jobs[jobID]
	return ok, nil
}

func (q *memQueue) PopDue(_ context.Context, now time.Time, limit int64) ([]queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []queue.Job
	for id, job := range q.jobs {
		if int64(len(due)) >= limit {
			break
		}
		if !job.RunAt.After(now) {
			due = append(due, job)
			delete(q.jobs, id)
		}
	}
	return due, nil
}

func (q *memQueue) Depth(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}

func (q *memQueue) Ping(context.Context) error { return nil }

var _ queue.Queue = (*memQueue)(nil)

// memCache is an in-memory cache.Cache.
type memCache struct {
	mu       sync.Mutex
	values   map[string][]byte
	statuses map[uuid.UUID]string
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string][]byte), statuses: make(map[uuid.UUID]string)}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) SetTaskStatus(_ context.Context, taskID uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[taskID] = status
	return nil
}

func (c *memCache) GetTaskStatus(_ context.Context, taskID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[taskID]
	return s, ok, nil
}

var _ cache.Cache = (*memCache)(nil)

type fixture struct {
	store *memStore
	queue *memQueue
	cache *memCache
	sched *scheduler.Scheduler
}

func newFixture() *fixture {
	st := newMemStore()
	q := newMemQueue()
	ca := newMemCache()
	return &fixture{store: st, queue: q, cache: ca, sched: scheduler.New(st, q, ca)}
}

func strPtr(s string) *string { return &s }

func pendingDefinition() scheduler.TaskDefinition {
	return scheduler.TaskDefinition{
		PlaybookContent: strPtr("- hosts: all\n  tasks:\n    - ping: {}\n"),
		Inventory:       "web1,web2",
		RunTime:         time.Now().Add(time.Hour).UTC(),
	}
}

func TestSubmit(t *testing.T) {
	f := newFixture()

	task, err := f.sched.Submit(context.Background(), pendingDefinition())
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusPending, task.Status)
	require.NotNil(t, task.QueueJobID)

	known, err := f.queue.Known(context.Background(), *task.QueueJobID)
	require.NoError(t, err)
	assert.True(t, known)

	stored, err := f.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, stored.Status)
	require.NotNil(t, stored.QueueJobID)
	assert.Equal(t, *task.QueueJobID, *stored.QueueJobID)

	status, found, err := f.cache.GetTaskStatus(context.Background(), task.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.TaskStatusPending, status)
}

func TestSubmit_RejectsUnvalidatedGeneratedPlaybook(t *testing.T) {
	f := newFixture()

	def := pendingDefinition()
	def.IsGenerated = true
	def.SafetyValidated = false

	_, err := f.sched.Submit(context.Background(), def)
	assert.ErrorIs(t, err, scheduler.ErrUnvalidatedPlaybook)

	depth, _ := f.queue.Depth(context.Background())
	assert.Equal(t, int64(0), depth)
}

func TestSubmit_AcceptsValidatedGeneratedPlaybook(t *testing.T) {
	f := newFixture()

	def := pendingDefinition()
	def.IsGenerated = true
	def.SafetyValidated = true
	def.GenerationMeta = map[string]any{"provider": "ollama"}

	task, err := f.sched.Submit(context.Background(), def)
	require.NoError(t, err)
	assert.True(t, task.IsGenerated)
	assert.True(t, task.SafetyValidated)
}

func TestSubmit_RequiresPlaybook(t *testing.T) {
	f := newFixture()

	def := pendingDefinition()
	def.PlaybookContent = nil
	def.PlaybookPath = nil

	_, err := f.sched.Submit(context.Background(), def)
	assert.Error(t, err)
}

func TestSubmit_EnqueueFailureLeavesPendingRow(t *testing.T) {
	f := newFixture()
	f.queue.enqueueErr = errors.New("redis down")

	_, err := f.sched.Submit(context.Background(), pendingDefinition())
	require.Error(t, err)

	pending, err := f.store.ListTasksByStatus(context.Background(), models.TaskStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].QueueJobID)
}

func TestCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	task, err := f.sched.Submit(ctx, pendingDefinition())
	require.NoError(t, err)

	revoked, err := f.sched.Cancel(ctx, *task.QueueJobID)
	require.NoError(t, err)
	assert.True(t, revoked)

	stored, err := f.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRevoked, stored.Status)

	known, err := f.queue.Known(ctx, *task.QueueJobID)
	require.NoError(t, err)
	assert.False(t, known)
}

func TestCancel_UnknownJob(t *testing.T) {
	f := newFixture()

	revoked, err := f.sched.Cancel(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestCancel_NonPendingTask(t *testing.T) {
	for _, status := range []string{
		models.TaskStatusRunning,
		models.TaskStatusSuccess,
		models.TaskStatusFailure,
		models.TaskStatusRevoked,
	} {
		t.Run(status, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()

			task, err := f.sched.Submit(ctx, pendingDefinition())
			require.NoError(t, err)

			f.store.mu.Lock()
			f.store.tasks[task.ID].Status = status
			f.store.mu.Unlock()

			revoked, err := f.sched.Cancel(ctx, *task.QueueJobID)
			require.NoError(t, err)
			assert.False(t, revoked)

			stored, err := f.store.GetTask(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, status, stored.Status, "a non-pending task must not change status")
		})
	}
}

func TestMarkRunningAndComplete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	task, err := f.sched.Submit(ctx, pendingDefinition())
	require.NoError(t, err)

	require.NoError(t, f.sched.MarkRunning(ctx, task.ID))
	status, err := f.sched.Status(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRunning, status)

	require.NoError(t, f.sched.Complete(ctx, task.ID, true, "ok"))
	status, err = f.sched.Status(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, status)

	// Terminal states sink: no further transitions.
	err = f.sched.MarkRunning(ctx, task.ID)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestComplete_Failure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	task, err := f.sched.Submit(ctx, pendingDefinition())
	require.NoError(t, err)
	require.NoError(t, f.sched.MarkRunning(ctx, task.ID))
	require.NoError(t, f.sched.Complete(ctx, task.ID, false, "playbook failed"))

	stored, err := f.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailure, stored.Status)
}

func TestStatus_FallsBackToStore(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	task, err := f.sched.Submit(ctx, pendingDefinition())
	require.NoError(t, err)

	// Simulate cache eviction.
	f.cache.mu.Lock()
	delete(f.cache.statuses, task.ID)
	f.cache.mu.Unlock()

	status, err := f.sched.Status(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, status)
}

func TestRemove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	task, err := f.sched.Submit(ctx, pendingDefinition())
	require.NoError(t, err)

	require.NoError(t, f.sched.Remove(ctx, task.ID))

	_, err = f.store.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	depth, _ := f.queue.Depth(ctx)
	assert.Equal(t, int64(0), depth)
}

func TestRecover(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// A healthy future task: queue still knows its job, no re-enqueue.
	healthy, err := f.sched.Submit(ctx, pendingDefinition())
	require.NoError(t, err)

	// A future PENDING task whose queue entry was lost.
	lost, err := f.sched.Submit(ctx, pendingDefinition())
	require.NoError(t, err)
	f.queue.mu.Lock()
	delete(f.queue.jobs, *lost.QueueJobID)
	f.queue.mu.Unlock()

	// An overdue PENDING task is left alone.
	overdue := pendingDefinition()
	overdue.RunTime = time.Now().Add(-time.Hour).UTC()
	overdueTask, err := f.sched.Submit(ctx, overdue)
	require.NoError(t, err)
	f.queue.mu.Lock()
	delete(f.queue.jobs, *overdueTask.QueueJobID)
	f.queue.mu.Unlock()

	recovered, err := f.sched.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	// The lost task has a fresh job id that the queue knows about.
	refreshed, err := f.store.GetTask(ctx, lost.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.QueueJobID)
	assert.NotEqual(t, *lost.QueueJobID, *refreshed.QueueJobID)
	known, err := f.queue.Known(ctx, *refreshed.QueueJobID)
	require.NoError(t, err)
	assert.True(t, known)

	// The healthy task kept its original job.
	kept, err := f.store.GetTask(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, *healthy.QueueJobID, *kept.QueueJobID)
}
