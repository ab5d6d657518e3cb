package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.JobStore = (*jobStore)(nil)

// jobStore implements driven.JobStore using PostgreSQL
type jobStore struct {
	r *repository
}

const jobColumns = `
	id, name, input, status, error, enqueued_at, started_processing_at, finished_processing_at
`

// Save creates or updates a job
func (s *jobStore) Save(ctx context.Context, job *domain.BackgroundJob) error {
	var inputJSON []byte
	var err error
	if job.Input != nil {
		inputJSON, err = json.Marshal(job.Input)
		if err != nil {
			return fmt.Errorf("marshal input: %w", err)
		}
	}

	query := `
		INSERT INTO jobs (id, name, input, status, error, enqueued_at, started_processing_at, finished_processing_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			started_processing_at = EXCLUDED.started_processing_at,
			finished_processing_at = EXCLUDED.finished_processing_at
	`

	_, err = s.r.tx.ExecContext(ctx, query,
		job.ID,
		job.Name,
		inputJSON,
		string(job.Status),
		job.Error,
		job.EnqueuedAt,
		NullTime(job.StartedProcessingAt),
		NullTime(job.FinishedProcessingAt),
	)
	return err
}

// Get retrieves a job by ID
func (s *jobStore) Get(ctx context.Context, id string) (*domain.BackgroundJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.r.tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

// OldestEnqueued returns the oldest Enqueued job whose name/target has no
// Processing job, or nil if none is claimable.
func (s *jobStore) OldestEnqueued(ctx context.Context) (*domain.BackgroundJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs j
		WHERE j.status = $1
		  AND NOT EXISTS (
			SELECT 1 FROM jobs p
			WHERE p.status = $2
			  AND p.name = j.name
			  AND COALESCE(p.input->>'collection_id', '') = COALESCE(j.input->>'collection_id', '')
		  )
		ORDER BY j.enqueued_at
		LIMIT 1
	`

	job, err := scanJob(s.r.tx.QueryRowContext(ctx, query,
		string(domain.JobStatusEnqueued), string(domain.JobStatusProcessing)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// List retrieves all jobs, oldest first
func (s *jobStore) List(ctx context.Context) ([]*domain.BackgroundJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY enqueued_at`

	rows, err := s.r.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.BackgroundJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteFinishedBefore removes finished jobs that completed before the cutoff
func (s *jobStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ($1, $2) AND finished_processing_at < $3
	`

	result, err := s.r.tx.ExecContext(ctx, query,
		string(domain.JobStatusSucceeded), string(domain.JobStatusFailed), cutoff)
	if err != nil {
		return 0, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

func scanJob(row rowScanner) (*domain.BackgroundJob, error) {
	var job domain.BackgroundJob
	var inputJSON []byte
	var status string
	var started, finished sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.Name,
		&inputJSON,
		&status,
		&job.Error,
		&job.EnqueuedAt,
		&started,
		&finished,
	)
	if err != nil {
		return nil, err
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &job.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	job.Status = domain.JobStatus(status)
	job.StartedProcessingAt = TimePtr(started)
	job.FinishedProcessingAt = TimePtr(finished)

	return &job, nil
}
