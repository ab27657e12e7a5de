// Package scheduler owns the task lifecycle: submission, cancellation,
// status transitions, and restart recovery.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opsmith/playbookpilot/internal/cache"
	"github.com/opsmith/playbookpilot/internal/queue"
	"github.com/opsmith/playbookpilot/internal/store"
	"github.com/opsmith/playbookpilot/pkg/models"
)

// ErrUnvalidatedPlaybook rejects generated playbooks that were not accepted
// by the safety policy. An invalid generation result never reaches the queue.
var ErrUnvalidatedPlaybook = errors.New("generated playbook has not passed safety validation")

const statusCacheTTL = 30 * time.Minute

// TaskDefinition is the submission payload for a new task.
type TaskDefinition struct {
	PlaybookPath    *string        `json:"playbook_path,omitempty"`
	PlaybookContent *string        `json:"playbook_content,omitempty"`
	Inventory       string         `json:"inventory"`
	RunTime         time.Time      `json:"run_time"`
	IsGenerated     bool           `json:"is_generated"`
	SafetyValidated bool           `json:"safety_validated"`
	GenerationMeta  map[string]any `json:"generation_metadata,omitempty"`
}

// Scheduler persists tasks and hands them to the external execution queue.
type Scheduler struct {
	store store.Store
	queue queue.Queue
	cache cache.Cache
}

func New(st store.Store, q queue.Queue, ca cache.Cache) *Scheduler {
	return &Scheduler{store: st, queue: q, cache: ca}
}

// Submit persists the task in PENDING and enqueues a deferred job keyed by the
// task id. The queue job identifier is recorded on the task row.
func (s *Scheduler) Submit(ctx context.Context, def TaskDefinition) (*models.Task, error) {
	if def.IsGenerated && !def.SafetyValidated {
		return nil, ErrUnvalidatedPlaybook
	}
	if def.PlaybookPath == nil && def.PlaybookContent == nil {
		return nil, fmt.Errorf("task definition needs a playbook path or inline content")
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:              uuid.New(),
		PlaybookPath:    def.PlaybookPath,
		PlaybookContent: def.PlaybookContent,
		Inventory:       def.Inventory,
		RunTime:         def.RunTime,
		IsGenerated:     def.IsGenerated,
		SafetyValidated: def.SafetyValidated,
		GenerationMeta:  def.GenerationMeta,
		Status:          models.TaskStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("persisting task: %w", err)
	}

	jobID, err := s.queue.Enqueue(ctx, task.ID, def.RunTime)
	if err != nil {
		// The PENDING row stays; restart recovery re-enqueues it.
		return nil, fmt.Errorf("enqueueing task %s: %w", task.ID, err)
	}
	if err := s.store.SetTaskQueueJob(ctx, task.ID, jobID); err != nil {
		return nil, fmt.Errorf("recording queue job: %w", err)
	}
	task.QueueJobID = &jobID

	_ = s.cache.SetTaskStatus(ctx, task.ID, models.TaskStatusPending, statusCacheTTL)
	slog.Info("task submitted", "task_id", task.ID, "job_id", jobID, "run_time", def.RunTime)
	return task, nil
}

// Cancel requests queue-level revocation for the job and, when the queue
// accepted it, moves the task to REVOKED. Returns false (not an error) when
// the job was already running, finished, or unknown.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (bool, error) {
	task, err := s.store.GetTaskByQueueJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if task.Status != models.TaskStatusPending {
		slog.Info("cancel refused: task not pending", "task_id", task.ID, "status", task.Status)
		return false, nil
	}

	accepted, err := s.queue.Revoke(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("revoking job %s: %w", jobID, err)
	}
	if !accepted {
		return false, nil
	}

	if err := s.store.TransitionTask(ctx, task.ID, models.TaskStatusPending, models.TaskStatusRevoked); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// Raced with a worker pickup; revocation already removed the
			// queue entry, so the worker will skip it.
			return false, nil
		}
		return false, err
	}
	_ = s.cache.SetTaskStatus(ctx, task.ID, models.TaskStatusRevoked, statusCacheTTL)
	slog.Info("task revoked", "task_id", task.ID, "job_id", jobID)
	return true, nil
}

// Get returns one task by id.
func (s *Scheduler) Get(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	return s.store.GetTask(ctx, taskID)
}

// List returns all tasks, newest first.
func (s *Scheduler) List(ctx context.Context) ([]*models.Task, error) {
	return s.store.ListTasks(ctx)
}

// Status returns the task's execution status, served from cache when fresh.
func (s *Scheduler) Status(ctx context.Context, taskID uuid.UUID) (string, error) {
	if status, found, err := s.cache.GetTaskStatus(ctx, taskID); err == nil && found {
		return status, nil
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	return task.Status, nil
}

// MarkRunning transitions a task to RUNNING when a worker picks it up.
func (s *Scheduler) MarkRunning(ctx context.Context, taskID uuid.UUID) error {
	if err := s.store.TransitionTask(ctx, taskID, models.TaskStatusPending, models.TaskStatusRunning); err != nil {
		return err
	}
	_ = s.cache.SetTaskStatus(ctx, taskID, models.TaskStatusRunning, statusCacheTTL)
	return nil
}

// Complete records the terminal outcome of an execution.
func (s *Scheduler) Complete(ctx context.Context, taskID uuid.UUID, succeeded bool, output string) error {
	to := models.TaskStatusSuccess
	if !succeeded {
		to = models.TaskStatusFailure
	}
	if err := s.store.TransitionTask(ctx, taskID, models.TaskStatusRunning, to, store.WithOutput(output)); err != nil {
		return err
	}
	_ = s.cache.SetTaskStatus(ctx, taskID, to, statusCacheTTL)
	slog.Info("task completed", "task_id", taskID, "status", to)
	return nil
}

// Remove deletes a task row after attempting to revoke its queue job.
func (s *Scheduler) Remove(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.QueueJobID != nil {
		if _, err := s.queue.Revoke(ctx, *task.QueueJobID); err != nil {
			slog.Error("best-effort revoke failed during removal", "task_id", taskID, "error", err)
		}
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, cache.TaskStatusKey(taskID))
	return nil
}

// Recover reconciles durable task state with the queue after a process
// restart: PENDING tasks whose run time has not elapsed and whose job the
// queue no longer knows are re-enqueued. Tasks that were RUNNING at crash
// time are left for manual reconciliation to avoid double execution.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	pending, err := s.store.ListTasksByStatus(ctx, models.TaskStatusPending)
	if err != nil {
		return 0, fmt.Errorf("listing pending tasks: %w", err)
	}

	recovered := 0
	now := time.Now().UTC()
	for _, task := range pending {
		if !task.RunTime.After(now) {
			continue
		}
		if task.QueueJobID != nil {
			known, err := s.queue.Known(ctx, *task.QueueJobID)
			if err != nil {
				return recovered, fmt.Errorf("checking job %s: %w", *task.QueueJobID, err)
			}
			if known {
				continue
			}
		}
		jobID, err := s.queue.Enqueue(ctx, task.ID, task.RunTime)
		if err != nil {
			return recovered, fmt.Errorf("re-enqueueing task %s: %w", task.ID, err)
		}
		if err := s.store.SetTaskQueueJob(ctx, task.ID, jobID); err != nil {
			return recovered, err
		}
		slog.Info("task re-enqueued after restart", "task_id", task.ID, "job_id", jobID)
		recovered++
	}

	running, err := s.store.ListTasksByStatus(ctx, models.TaskStatusRunning)
	if err != nil {
		return recovered, fmt.Errorf("listing running tasks: %w", err)
	}
	for _, task := range running {
		slog.Warn("task was running at shutdown; leaving for manual reconciliation", "task_id", task.ID)
	}

	return recovered, nil
}
