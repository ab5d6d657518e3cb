package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driving"
)

// Worker drains the job queue and dispatches jobs to the sync service.
type Worker struct {
	queue       driven.JobQueue
	syncService driving.SyncService
	logger      *slog.Logger

	// Configuration
	concurrency   int
	pollInterval  time.Duration
	purgeInterval time.Duration
	purgeAge      time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Queue       driven.JobQueue
	SyncService driving.SyncService
	Logger      *slog.Logger

	Concurrency   int           // Number of concurrent job processors
	PollInterval  time.Duration // Delay between empty dequeue attempts
	PurgeInterval time.Duration // How often finished jobs are purged
	PurgeAge      time.Duration // Minimum age of finished jobs to purge
}

// NewWorker creates a new job worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	purgeInterval := cfg.PurgeInterval
	if purgeInterval <= 0 {
		purgeInterval = time.Hour
	}

	purgeAge := cfg.PurgeAge
	if purgeAge <= 0 {
		purgeAge = 24 * time.Hour
	}

	return &Worker{
		queue:         cfg.Queue,
		syncService:   cfg.SyncService,
		logger:        logger,
		concurrency:   concurrency,
		pollInterval:  pollInterval,
		purgeInterval: purgeInterval,
		purgeAge:      purgeAge,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"poll_interval", w.pollInterval,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.purgeLoop(ctx)
	}()

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			logger.Error("failed to dequeue job", "error", err)
			w.sleep(ctx, w.pollInterval)
			continue
		}

		if job == nil {
			w.sleep(ctx, w.pollInterval)
			continue
		}

		w.processJob(ctx, job, logger)
	}
}

// purgeLoop periodically removes old finished jobs.
func (w *Worker) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(w.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			removed, err := w.queue.Purge(ctx, w.purgeAge)
			if err != nil {
				w.logger.Error("failed to purge finished jobs", "error", err)
				continue
			}
			if removed > 0 {
				w.logger.Info("purged finished jobs", "removed", removed)
			}
		}
	}
}

// processJob processes a single job and records its terminal status.
func (w *Worker) processJob(ctx context.Context, job *domain.BackgroundJob, logger *slog.Logger) {
	logger = logger.With("job_id", job.ID, "job_name", job.Name, "collection_id", job.CollectionID())
	logger.Info("processing job")

	startTime := time.Now()
	var err error

	switch job.Name {
	case domain.JobNameSyncDown:
		err = w.handleSyncDown(ctx, job)
	default:
		err = fmt.Errorf("unknown job name: %s", job.Name)
	}

	duration := time.Since(startTime)

	if err != nil {
		logger.Error("job failed",
			"duration", duration,
			"error", err,
		)

		if failErr := w.queue.Fail(ctx, job.ID, err.Error()); failErr != nil {
			logger.Error("failed to record job failure", "fail_error", failErr)
		}
		return
	}

	logger.Info("job completed", "duration", duration)

	if completeErr := w.queue.Complete(ctx, job.ID); completeErr != nil {
		logger.Error("failed to record job completion", "complete_error", completeErr)
	}
}

// handleSyncDown handles a sync_down job.
func (w *Worker) handleSyncDown(ctx context.Context, job *domain.BackgroundJob) error {
	collectionID := job.CollectionID()
	if collectionID == "" {
		return fmt.Errorf("collection_id not found in job input")
	}

	result, err := w.syncService.DownSync(ctx, collectionID)
	if err != nil {
		return err
	}

	if !result.Success {
		return fmt.Errorf("down-sync failed: %s", result.Error)
	}

	return nil
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-timer.C:
	}
}
