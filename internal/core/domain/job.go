package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewID creates a unique identifier for any entity kind.
func NewID() string {
	return uuid.NewString()
}

// JobStatus is the lifecycle state of a background job.
// Enqueued -> Processing -> {Succeeded | Failed}.
type JobStatus string

const (
	JobStatusEnqueued   JobStatus = "enqueued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// Job names.
const (
	JobNameSyncDown = "sync_down"
)

// BackgroundJob is a unit of asynchronous work. Jobs are single-flight per
// name/target: while one job for a given name and target is Processing, no
// second one is dequeued.
type BackgroundJob struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Input  map[string]string `json:"input,omitempty"`
	Status JobStatus         `json:"status"`
	Error  string            `json:"error,omitempty"`

	EnqueuedAt           time.Time  `json:"enqueued_at"`
	StartedProcessingAt  *time.Time `json:"started_processing_at,omitempty"`
	FinishedProcessingAt *time.Time `json:"finished_processing_at,omitempty"`
}

// NewBackgroundJob creates an Enqueued job.
func NewBackgroundJob(name string, input map[string]string) *BackgroundJob {
	return &BackgroundJob{
		ID:         NewID(),
		Name:       name,
		Input:      input,
		Status:     JobStatusEnqueued,
		EnqueuedAt: time.Now().UTC(),
	}
}

// NewSyncDownJob creates a down-sync job for one collection.
func NewSyncDownJob(collectionID string) *BackgroundJob {
	return NewBackgroundJob(JobNameSyncDown, map[string]string{"collection_id": collectionID})
}

// Target is the single-flight scope of the job within its name.
func (j *BackgroundJob) Target() string {
	if j.Input == nil {
		return ""
	}
	return j.Input["collection_id"]
}

// CollectionID extracts the collection id from the input.
func (j *BackgroundJob) CollectionID() string {
	if j.Input == nil {
		return ""
	}
	return j.Input["collection_id"]
}

// Finished reports whether the job reached a terminal status.
func (j *BackgroundJob) Finished() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
