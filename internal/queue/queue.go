// Package queue is the client for the external deferred-execution queue.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one deferred execution entry.
type Job struct {
	ID     string
	TaskID uuid.UUID
	RunAt  time.Time
}

// Queue is the execution-queue capability consumed by the scheduler and worker.
type Queue interface {
	// Enqueue registers a deferred job for the task and returns the queue's
	// job identifier.
	Enqueue(ctx context.Context, taskID uuid.UUID, runAt time.Time) (string, error)
	// Revoke removes a job that has not yet been picked up. Returns false
	// when the job was already running or unknown to the queue; that is not
	// an error.
	Revoke(ctx context.Context, jobID string) (bool, error)
	// Known reports whether the queue still tracks the job.
	Known(ctx context.Context, jobID string) (bool, error)
	// PopDue atomically claims jobs whose run time has elapsed.
	PopDue(ctx context.Context, now time.Time, limit int64) ([]Job, error)
	// Depth returns the number of scheduled jobs.
	Depth(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}
