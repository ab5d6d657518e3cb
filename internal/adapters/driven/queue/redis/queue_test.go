package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	q, err := NewQueue(client)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueDequeueLifecycle(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	job := domain.NewSyncDownJob("col-1")
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobStatusEnqueued {
		t.Errorf("expected enqueued, got %s", got.Status)
	}

	claimed, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected job %s, got %+v", job.ID, claimed)
	}
	if claimed.Status != domain.JobStatusProcessing {
		t.Errorf("expected processing, got %s", claimed.Status)
	}
	if claimed.StartedProcessingAt == nil {
		t.Error("expected StartedProcessingAt to be set")
	}

	if err := q.Complete(ctx, job.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err = q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get after complete: %v", err)
	}
	if got.Status != domain.JobStatusSucceeded {
		t.Errorf("expected succeeded, got %s", got.Status)
	}
	if got.FinishedProcessingAt == nil {
		t.Error("expected FinishedProcessingAt to be set")
	}
}

func TestDequeueEmptyQueue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil job, got %+v", job)
	}
}

func TestDequeueIsSingleFlightPerTarget(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	first := domain.NewSyncDownJob("col-1")
	second := domain.NewSyncDownJob("col-1")
	other := domain.NewSyncDownJob("col-2")
	for _, job := range []*domain.BackgroundJob{first, second, other} {
		if err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	claimed, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if claimed.ID != first.ID {
		t.Fatalf("expected oldest job %s first, got %s", first.ID, claimed.ID)
	}

	// col-1 is busy, so the next claim skips to col-2.
	claimed, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if claimed == nil || claimed.ID != other.ID {
		t.Fatalf("expected col-2 job, got %+v", claimed)
	}

	// Everything claimable is processing now.
	claimed, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected no claimable job, got %+v", claimed)
	}

	// Finishing the first col-1 job frees the second.
	if err := q.Complete(ctx, first.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	claimed, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if claimed == nil || claimed.ID != second.ID {
		t.Fatalf("expected second col-1 job, got %+v", claimed)
	}
}

func TestFailRecordsReason(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	job := domain.NewSyncDownJob("col-1")
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if err := q.Fail(ctx, job.ID, "connector unreachable"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.Error != "connector unreachable" {
		t.Errorf("expected failure reason, got %q", got.Error)
	}
}

func TestGetUnknownJob(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	if _, err := q.Get(ctx, "missing"); err != domain.ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestPurgeRemovesOldFinishedJobs(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	old := domain.NewSyncDownJob("col-1")
	if err := q.Enqueue(ctx, old); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if err := q.Complete(ctx, old.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// Backdate the finish time below the cutoff.
	finished, err := q.Get(ctx, old.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	past := time.Now().UTC().Add(-48 * time.Hour)
	finished.FinishedProcessingAt = &past
	if err := q.saveJob(ctx, finished); err != nil {
		t.Fatalf("saveJob: %v", err)
	}

	pending := domain.NewSyncDownJob("col-2")
	if err := q.Enqueue(ctx, pending); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	removed, err := q.Purge(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, err := q.Get(ctx, old.ID); err != domain.ErrJobNotFound {
		t.Errorf("expected old job gone, got %v", err)
	}
	if _, err := q.Get(ctx, pending.ID); err != nil {
		t.Errorf("expected pending job kept, got %v", err)
	}
}
