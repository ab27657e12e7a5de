// Package worker drives the execution loop on the queue-worker side of the
// process boundary.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opsmith/playbookpilot/internal/queue"
	"github.com/opsmith/playbookpilot/internal/scheduler"
	"github.com/opsmith/playbookpilot/internal/store"
	"github.com/opsmith/playbookpilot/internal/telemetry"
)

// Processor polls the execution queue for due jobs and runs them.
type Processor struct {
	queue        queue.Queue
	sched        *scheduler.Scheduler
	runner       Runner
	pollInterval time.Duration
	batchSize    int64
}

func NewProcessor(q queue.Queue, sched *scheduler.Scheduler, runner Runner, pollInterval time.Duration, batchSize int) *Processor {
	return &Processor{
		queue:        q,
		sched:        sched,
		runner:       runner,
		pollInterval: pollInterval,
		batchSize:    int64(batchSize),
	}
}

// Run loops until context cancellation, claiming due jobs and executing them.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if depth, err := p.queue.Depth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		jobs, err := p.queue.PopDue(ctx, time.Now(), p.batchSize)
		if err != nil {
			slog.Error("polling queue failed", "error", err)
			continue
		}
		for _, job := range jobs {
			p.process(ctx, job)
		}
	}
}

// ProcessOnce claims and executes at most one batch of due jobs; used by tests
// and one-shot invocations.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	jobs, err := p.queue.PopDue(ctx, time.Now(), p.batchSize)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		p.process(ctx, job)
	}
	return len(jobs), nil
}

func (p *Processor) process(ctx context.Context, job queue.Job) {
	if err := p.sched.MarkRunning(ctx, job.TaskID); err != nil {
		// Revoked or already handled elsewhere; drop the job.
		if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			slog.Info("skipping job: task not pending", "task_id", job.TaskID, "job_id", job.ID)
			return
		}
		slog.Error("marking task running failed", "task_id", job.TaskID, "error", err)
		return
	}

	task, err := p.sched.Get(ctx, job.TaskID)
	if err != nil {
		slog.Error("loading task failed", "task_id", job.TaskID, "error", err)
		_ = p.sched.Complete(ctx, job.TaskID, false, "task row disappeared during execution")
		telemetry.TasksFailed.Inc()
		return
	}

	slog.Info("executing playbook", "task_id", task.ID, "inventory", task.Inventory)
	result, err := p.runner.Run(ctx, task.Playbook(), task.Inventory)
	if err != nil {
		_ = p.sched.Complete(ctx, task.ID, false, err.Error())
		telemetry.TasksFailed.Inc()
		return
	}

	if err := p.sched.Complete(ctx, task.ID, result.Succeeded, result.Output); err != nil {
		slog.Error("recording task outcome failed", "task_id", task.ID, "error", err)
		return
	}
	if result.Succeeded {
		telemetry.TasksSucceeded.Inc()
	} else {
		telemetry.TasksFailed.Inc()
	}
}
