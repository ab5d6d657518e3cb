package services

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driving"
)

func TestEnqueueSyncDown(t *testing.T) {
	db := newTestStore(t)
	engine := newTestEngine()

	connector := mocks.NewMockConnector()
	connector.TypeFn = func() string { return "githubdocs" }
	collections := NewCollectionService(CollectionServiceConfig{
		Tx: db, Engine: engine, Connectors: mocks.NewMockConnectorRegistry(connector),
	})

	queue := mocks.NewMockJobQueue()
	var enqueued *domain.BackgroundJob
	queue.EnqueueFn = func(ctx context.Context, job *domain.BackgroundJob) error {
		enqueued = job
		return nil
	}
	jobs := NewJobService(JobServiceConfig{Tx: db, Queue: queue})

	derivation := bookDerivation()
	derivation.RemoteConverters = &domain.RemoteConverters{
		FromRemoteDocument: domain.ScriptModule{Source: "local remote = ...\nreturn remote\n"},
	}
	bound, err := collections.CreateCollection(context.Background(), driving.CreateCollectionRequest{
		Settings:   domain.CollectionSettings{Name: "Remote"},
		Schema:     bookSchema(),
		Derivation: derivation,
		Remote:     &domain.RemoteBinding{Connector: "githubdocs"},
	})
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	job, err := jobs.EnqueueSyncDown(context.Background(), bound.Collection.ID)
	if err != nil {
		t.Fatalf("EnqueueSyncDown: %v", err)
	}
	if enqueued == nil || enqueued.ID != job.ID {
		t.Fatalf("enqueued = %+v", enqueued)
	}
	if job.Name != domain.JobNameSyncDown || job.CollectionID() != bound.Collection.ID {
		t.Errorf("job = %+v", job)
	}
	if job.Status != domain.JobStatusEnqueued {
		t.Errorf("status = %q", job.Status)
	}

	// A collection without a binding cannot be synced.
	local, err := collections.CreateCollection(context.Background(), driving.CreateCollectionRequest{
		Settings:   domain.CollectionSettings{Name: "Local"},
		Schema:     bookSchema(),
		Derivation: bookDerivation(),
	})
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}
	if _, err := jobs.EnqueueSyncDown(context.Background(), local.Collection.ID); !errors.Is(err, domain.ErrNoRemoteBinding) {
		t.Errorf("err = %v, want ErrNoRemoteBinding", err)
	}
}
