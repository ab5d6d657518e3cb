package services

import (
	"context"
	"log/slog"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driving"
)

// Ensure jobService implements JobService
var _ driving.JobService = (*jobService)(nil)

// jobService implements the JobService interface.
type jobService struct {
	tx     driven.TxManager
	queue  driven.JobQueue
	logger *slog.Logger
}

// JobServiceConfig holds dependencies for the job service.
type JobServiceConfig struct {
	Tx     driven.TxManager
	Queue  driven.JobQueue
	Logger *slog.Logger
}

// NewJobService creates a new JobService.
func NewJobService(cfg JobServiceConfig) driving.JobService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &jobService{tx: cfg.Tx, queue: cfg.Queue, logger: logger}
}

// EnqueueSyncDown schedules a down-sync for a bound collection.
func (s *jobService) EnqueueSyncDown(ctx context.Context, collectionID string) (*domain.BackgroundJob, error) {
	err := s.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, collectionID)
		if err != nil {
			return err
		}
		if collection.Remote == nil {
			return domain.ErrNoRemoteBinding
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	job := domain.NewSyncDownJob(collectionID)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("sync job enqueued", "job_id", job.ID, "collection_id", collectionID)
	return job, nil
}

// GetJob retrieves a job by id.
func (s *jobService) GetJob(ctx context.Context, jobID string) (*domain.BackgroundJob, error) {
	return s.queue.Get(ctx, jobID)
}
