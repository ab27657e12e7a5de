package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	scheduledKey  = "queue:scheduled"
	jobMetaPrefix = "queue:jobmeta:"
)

// RedisQueue coordinates deferred playbook jobs in a Redis sorted set scored
// by run time. Job metadata (the owning task id) lives in a hash per job.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue builds a queue client from a Redis URL.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &RedisQueue{client: redis.NewClient(opts)}, nil
}

// NewRedisQueueFromClient wraps an existing client, mainly for tests.
func NewRedisQueueFromClient(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func metaKey(jobID string) string {
	return jobMetaPrefix + jobID
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, taskID uuid.UUID, runAt time.Time) (string, error) {
	jobID := uuid.New().String()

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, metaKey(jobID), "task_id", taskID.String(), "run_at", runAt.UnixMilli())
	pipe.ZAdd(ctx, scheduledKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

// Revoke removes a scheduled job. Revocation is best-effort: a job already
// claimed by a worker (or never enqueued) reports false.
func (q *RedisQueue) Revoke(ctx context.Context, jobID string) (bool, error) {
	removed, err := q.client.ZRem(ctx, scheduledKey, jobID).Result()
	if err != nil {
		return false, fmt.Errorf("revoke job: %w", err)
	}
	if removed == 0 {
		return false, nil
	}
	_ = q.client.Del(ctx, metaKey(jobID)).Err()
	return true, nil
}

func (q *RedisQueue) Known(ctx context.Context, jobID string) (bool, error) {
	err := q.client.ZScore(ctx, scheduledKey, jobID).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check job: %w", err)
	}
	return true, nil
}

// popDueScript claims due jobs atomically so two workers never receive the
// same job.
var popDueScript = redis.NewScript(`
local jobs = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for i=1,#jobs do
  redis.call('ZREM', KEYS[1], jobs[i])
end
return jobs
`)

func (q *RedisQueue) PopDue(ctx context.Context, now time.Time, limit int64) ([]Job, error) {
	res, err := popDueScript.Run(ctx, q.client, []string{scheduledKey},
		now.UnixMilli(), limit).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("pop due jobs: %w", err)
	}

	jobs := make([]Job, 0, len(res))
	for _, jobID := range res {
		meta, err := q.client.HGetAll(ctx, metaKey(jobID)).Result()
		if err != nil {
			return nil, fmt.Errorf("read job meta: %w", err)
		}
		_ = q.client.Del(ctx, metaKey(jobID)).Err()

		taskID, err := uuid.Parse(meta["task_id"])
		if err != nil {
			// Meta expired or corrupt; skip rather than crash the worker.
			continue
		}
		var runAt time.Time
		if ms, err := strconv.ParseInt(meta["run_at"], 10, 64); err == nil {
			runAt = time.UnixMilli(ms)
		}
		jobs = append(jobs, Job{ID: jobID, TaskID: taskID, RunAt: runAt})
	}
	return jobs, nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, scheduledKey).Result()
}

var _ Queue = (*RedisQueue)(nil)
