// Package store implements the job queue on the transactional repository, so
// jobs persist wherever documents do (memdb in process, postgres when
// configured). Claim races surface as commit conflicts and are retried.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.JobQueue = (*Queue)(nil)

const claimAttempts = 3

// Queue persists jobs through the repository's job store.
type Queue struct {
	tx driven.TxManager
}

// NewQueue creates a repository-backed job queue.
func NewQueue(tx driven.TxManager) *Queue {
	return &Queue{tx: tx}
}

// Enqueue stores a job in status Enqueued.
func (q *Queue) Enqueue(ctx context.Context, job *domain.BackgroundJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	stored := *job
	return driven.RunWithRetry(ctx, q.tx, claimAttempts, func(repo driven.Repository) error {
		return repo.Jobs().Save(ctx, &stored)
	})
}

// Dequeue claims the oldest claimable Enqueued job and marks it Processing.
// Returns nil when nothing is claimable.
func (q *Queue) Dequeue(ctx context.Context) (*domain.BackgroundJob, error) {
	var claimed *domain.BackgroundJob
	err := driven.RunWithRetry(ctx, q.tx, claimAttempts, func(repo driven.Repository) error {
		claimed = nil
		job, err := repo.Jobs().OldestEnqueued(ctx)
		if err != nil || job == nil {
			return err
		}
		now := time.Now().UTC()
		next := *job
		next.Status = domain.JobStatusProcessing
		next.StartedProcessingAt = &now
		if err := repo.Jobs().Save(ctx, &next); err != nil {
			return err
		}
		claimed = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete marks a Processing job Succeeded.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	return q.finish(ctx, jobID, domain.JobStatusSucceeded, "")
}

// Fail marks a Processing job Failed with the captured reason.
func (q *Queue) Fail(ctx context.Context, jobID string, reason string) error {
	return q.finish(ctx, jobID, domain.JobStatusFailed, reason)
}

func (q *Queue) finish(ctx context.Context, jobID string, status domain.JobStatus, reason string) error {
	return driven.RunWithRetry(ctx, q.tx, claimAttempts, func(repo driven.Repository) error {
		job, err := repo.Jobs().Get(ctx, jobID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		next := *job
		next.Status = status
		next.Error = reason
		next.FinishedProcessingAt = &now
		return repo.Jobs().Save(ctx, &next)
	})
}

// Get retrieves a job by id.
func (q *Queue) Get(ctx context.Context, jobID string) (*domain.BackgroundJob, error) {
	var job *domain.BackgroundJob
	err := q.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
		found, err := repo.Jobs().Get(ctx, jobID)
		if err != nil {
			return err
		}
		copied := *found
		job = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Purge removes finished jobs older than the cutoff.
func (q *Queue) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	removed := 0
	err := driven.RunWithRetry(ctx, q.tx, claimAttempts, func(repo driven.Repository) error {
		n, err := repo.Jobs().DeleteFinishedBefore(ctx, time.Now().UTC().Add(-olderThan))
		removed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close is a no-op; the repository owns the underlying storage.
func (q *Queue) Close() error {
	return nil
}
