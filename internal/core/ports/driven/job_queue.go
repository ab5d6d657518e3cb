package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// JobQueue hands background jobs to the worker. Implementations can use
// Redis (preferred) or the in-memory queue (single process, tests).
//
// Dequeue is single-flight per job name/target: while a Processing job for a
// given name and target exists, no further job with the same name and target
// is handed out.
type JobQueue interface {
	// Enqueue adds a job in status Enqueued.
	Enqueue(ctx context.Context, job *domain.BackgroundJob) error

	// Dequeue claims the oldest claimable Enqueued job and marks it
	// Processing. Returns nil, nil when nothing is claimable.
	Dequeue(ctx context.Context) (*domain.BackgroundJob, error)

	// Complete marks a Processing job Succeeded.
	Complete(ctx context.Context, jobID string) error

	// Fail marks a Processing job Failed with the captured error detail.
	Fail(ctx context.Context, jobID string, reason string) error

	// Get retrieves a job by id.
	Get(ctx context.Context, jobID string) (*domain.BackgroundJob, error)

	// Purge removes finished jobs older than the cutoff and returns the
	// number removed.
	Purge(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases queue resources.
	Close() error
}
