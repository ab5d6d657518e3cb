package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/docbase-core/internal/adapters/driven/memdb"
	"github.com/custodia-labs/docbase-core/internal/adapters/driven/queue/store"
	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// mockSyncService implements driving.SyncService for testing.
type mockSyncService struct {
	mu       sync.Mutex
	synced   []string
	downSync func(collectionID string) (*domain.SyncResult, error)
}

func (m *mockSyncService) DownSync(_ context.Context, collectionID string) (*domain.SyncResult, error) {
	m.mu.Lock()
	m.synced = append(m.synced, collectionID)
	m.mu.Unlock()
	if m.downSync != nil {
		return m.downSync(collectionID)
	}
	return &domain.SyncResult{CollectionID: collectionID, Success: true}, nil
}

func (m *mockSyncService) UpSync(_ context.Context, collectionID string) (*domain.SyncResult, error) {
	return nil, domain.ErrConnectorDoesNotSupportUpSyncing
}

func (m *mockSyncService) GetSyncState(_ context.Context, collectionID string) (*domain.SyncState, error) {
	return domain.NewSyncState(collectionID), nil
}

func (m *mockSyncService) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.synced...)
}

func newTestQueue(t *testing.T) *store.Queue {
	t.Helper()
	db, err := memdb.New()
	if err != nil {
		t.Fatalf("memdb: %v", err)
	}
	return store.NewQueue(db)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorkerProcessesSyncDownJob(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t)
	syncs := &mockSyncService{}

	job := domain.NewSyncDownJob("col-1")
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	w := NewWorker(WorkerConfig{
		Queue:        queue,
		SyncService:  syncs,
		Logger:       quietLogger(),
		PollInterval: 5 * time.Millisecond,
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, func() bool {
		got, err := queue.Get(ctx, job.ID)
		return err == nil && got.Status == domain.JobStatusSucceeded
	})

	calls := syncs.calls()
	if len(calls) != 1 || calls[0] != "col-1" {
		t.Errorf("expected one sync for col-1, got %v", calls)
	}
}

func TestWorkerRecordsJobFailure(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t)
	syncs := &mockSyncService{
		downSync: func(string) (*domain.SyncResult, error) {
			return nil, errors.New("connector unreachable")
		},
	}

	job := domain.NewSyncDownJob("col-1")
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	w := NewWorker(WorkerConfig{
		Queue:        queue,
		SyncService:  syncs,
		Logger:       quietLogger(),
		PollInterval: 5 * time.Millisecond,
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, func() bool {
		got, err := queue.Get(ctx, job.ID)
		return err == nil && got.Status == domain.JobStatusFailed
	})

	got, err := queue.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Error != "connector unreachable" {
		t.Errorf("expected failure reason recorded, got %q", got.Error)
	}
}

func TestWorkerFailsJobOnUnsuccessfulSync(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t)
	syncs := &mockSyncService{
		downSync: func(collectionID string) (*domain.SyncResult, error) {
			return &domain.SyncResult{CollectionID: collectionID, Success: false, Error: "2 items failed"}, nil
		},
	}

	job := domain.NewSyncDownJob("col-1")
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	w := NewWorker(WorkerConfig{
		Queue:        queue,
		SyncService:  syncs,
		Logger:       quietLogger(),
		PollInterval: 5 * time.Millisecond,
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, func() bool {
		got, err := queue.Get(ctx, job.ID)
		return err == nil && got.Status == domain.JobStatusFailed
	})
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	w := NewWorker(WorkerConfig{
		Queue:        newTestQueue(t),
		SyncService:  &mockSyncService{},
		Logger:       quietLogger(),
		PollInterval: 5 * time.Millisecond,
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	w.Stop()
	w.Stop()
}

func TestWorkerProcessesDistinctTargetsConcurrently(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t)

	started := make(chan string, 2)
	release := make(chan struct{})
	syncs := &mockSyncService{
		downSync: func(collectionID string) (*domain.SyncResult, error) {
			started <- collectionID
			<-release
			return &domain.SyncResult{CollectionID: collectionID, Success: true}, nil
		},
	}

	first := domain.NewSyncDownJob("col-1")
	second := domain.NewSyncDownJob("col-2")
	second.EnqueuedAt = first.EnqueuedAt.Add(time.Millisecond)
	for _, job := range []*domain.BackgroundJob{first, second} {
		if err := queue.Enqueue(ctx, job); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	w := NewWorker(WorkerConfig{
		Queue:        queue,
		SyncService:  syncs,
		Logger:       quietLogger(),
		Concurrency:  2,
		PollInterval: 5 * time.Millisecond,
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Both jobs are picked up before either finishes.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-started:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for concurrent job starts")
		}
	}
	close(release)
	w.Stop()

	if !seen["col-1"] || !seen["col-2"] {
		t.Errorf("expected both collections in flight, got %v", seen)
	}
}
