// Package redis implements the job queue on Redis. Job records live as JSON
// values; a per-name/target lock key enforces the single-flight rule across
// worker processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

const (
	// Key layout
	jobKeyPrefix    = "docbase:job:"
	pendingListKey  = "docbase:jobs:pending"
	activeKeyPrefix = "docbase:active:"

	// Safety TTL on job records
	jobTTL = 7 * 24 * time.Hour

	// A crashed worker's claim expires and the job becomes claimable again.
	claimTimeout = 15 * time.Minute
)

// Verify interface compliance
var _ driven.JobQueue = (*Queue)(nil)

// Queue implements JobQueue on Redis.
type Queue struct {
	client *redis.Client
}

// NewQueue creates a Redis-backed job queue.
func NewQueue(client *redis.Client) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Queue{client: client}, nil
}

func jobKey(jobID string) string { return jobKeyPrefix + jobID }

func activeKey(job *domain.BackgroundJob) string {
	return activeKeyPrefix + job.Name + ":" + job.Target()
}

func (q *Queue) saveJob(ctx context.Context, job *domain.BackgroundJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.Set(ctx, jobKey(job.ID), data, jobTTL).Err(); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return nil
}

func (q *Queue) loadJob(ctx context.Context, jobID string) (*domain.BackgroundJob, error) {
	data, err := q.client.Get(ctx, jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	var job domain.BackgroundJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// Enqueue adds a job in status Enqueued.
func (q *Queue) Enqueue(ctx context.Context, job *domain.BackgroundJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	if err := q.client.RPush(ctx, pendingListKey, job.ID).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue claims the oldest claimable Enqueued job and marks it Processing.
// Jobs whose name/target already has a live claim are left in place.
func (q *Queue) Dequeue(ctx context.Context) (*domain.BackgroundJob, error) {
	ids, err := q.client.LRange(ctx, pendingListKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}

	for _, jobID := range ids {
		job, err := q.loadJob(ctx, jobID)
		if errors.Is(err, domain.ErrJobNotFound) {
			// Record expired; drop the stale pending entry.
			q.client.LRem(ctx, pendingListKey, 1, jobID)
			continue
		}
		if err != nil {
			return nil, err
		}

		claimed, err := q.client.SetNX(ctx, activeKey(job), job.ID, claimTimeout).Result()
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		if !claimed {
			continue
		}

		if err := q.client.LRem(ctx, pendingListKey, 1, jobID).Err(); err != nil {
			return nil, fmt.Errorf("remove pending job: %w", err)
		}
		now := time.Now().UTC()
		job.Status = domain.JobStatusProcessing
		job.StartedProcessingAt = &now
		if err := q.saveJob(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, nil
}

// Complete marks a Processing job Succeeded and releases its claim.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	return q.finish(ctx, jobID, domain.JobStatusSucceeded, "")
}

// Fail marks a Processing job Failed with the captured reason.
func (q *Queue) Fail(ctx context.Context, jobID string, reason string) error {
	return q.finish(ctx, jobID, domain.JobStatusFailed, reason)
}

func (q *Queue) finish(ctx context.Context, jobID string, status domain.JobStatus, reason string) error {
	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	job.Status = status
	job.Error = reason
	job.FinishedProcessingAt = &now
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	if err := q.client.Del(ctx, activeKey(job)).Err(); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Get retrieves a job by id.
func (q *Queue) Get(ctx context.Context, jobID string) (*domain.BackgroundJob, error) {
	return q.loadJob(ctx, jobID)
}

// Purge removes finished jobs older than the cutoff.
func (q *Queue) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0

	iter := q.client.Scan(ctx, 0, jobKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		jobID := iter.Val()[len(jobKeyPrefix):]
		job, err := q.loadJob(ctx, jobID)
		if err != nil {
			continue
		}
		if !job.Finished() || job.FinishedProcessingAt == nil || !job.FinishedProcessingAt.Before(cutoff) {
			continue
		}
		if err := q.client.Del(ctx, jobKey(jobID)).Err(); err != nil {
			return removed, fmt.Errorf("purge job %s: %w", jobID, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan jobs: %w", err)
	}
	return removed, nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
