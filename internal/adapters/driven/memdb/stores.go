package memdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// The stores reach the current write txn through the repository so savepoint
// rollbacks transparently swap the txn under them.

type collectionStore struct{ repo *repository }

func (s *collectionStore) Get(_ context.Context, id string) (*domain.Collection, error) {
	raw, err := s.repo.txn.First(tableCollections, "id", id)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrCollectionNotFound
	}
	return raw.(*domain.Collection), nil
}

func (s *collectionStore) List(_ context.Context) ([]*domain.Collection, error) {
	it, err := s.repo.txn.Get(tableCollections, "id")
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	var out []*domain.Collection
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*domain.Collection))
	}
	return out, nil
}

func (s *collectionStore) Save(_ context.Context, collection *domain.Collection) error {
	if err := s.repo.txn.Insert(tableCollections, collection); err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	return nil
}

func (s *collectionStore) Delete(ctx context.Context, id string) error {
	collection, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.txn.Delete(tableCollections, collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

type collectionVersionStore struct{ repo *repository }

func (s *collectionVersionStore) Get(_ context.Context, id string) (*domain.CollectionVersion, error) {
	raw, err := s.repo.txn.First(tableCollectionVersions, "id", id)
	if err != nil {
		return nil, fmt.Errorf("get collection version: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrCollectionVersionNotFound
	}
	return raw.(*domain.CollectionVersion), nil
}

func (s *collectionVersionStore) ListByCollection(_ context.Context, collectionID string) ([]*domain.CollectionVersion, error) {
	it, err := s.repo.txn.Get(tableCollectionVersions, "collection", collectionID)
	if err != nil {
		return nil, fmt.Errorf("list collection versions: %w", err)
	}
	var out []*domain.CollectionVersion
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*domain.CollectionVersion))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *collectionVersionStore) LatestByCollection(ctx context.Context, collectionID string) (*domain.CollectionVersion, error) {
	versions, err := s.ListByCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Latest {
			return v, nil
		}
	}
	return nil, domain.ErrCollectionVersionNotFound
}

func (s *collectionVersionStore) SaveAsLatest(ctx context.Context, version *domain.CollectionVersion) error {
	versions, err := s.ListByCollection(ctx, version.CollectionID)
	if err != nil {
		return err
	}
	for _, prev := range versions {
		if prev.Latest && prev.ID != version.ID {
			demoted := *prev
			demoted.Latest = false
			if err := s.repo.txn.Insert(tableCollectionVersions, &demoted); err != nil {
				return fmt.Errorf("demote collection version: %w", err)
			}
		}
	}
	version.Latest = true
	if err := s.repo.txn.Insert(tableCollectionVersions, version); err != nil {
		return fmt.Errorf("save collection version: %w", err)
	}
	return nil
}

func (s *collectionVersionStore) DeleteByCollection(ctx context.Context, collectionID string) error {
	versions, err := s.ListByCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := s.repo.txn.Delete(tableCollectionVersions, v); err != nil {
			return fmt.Errorf("delete collection version: %w", err)
		}
	}
	return nil
}

type documentStore struct{ repo *repository }

func (s *documentStore) Get(_ context.Context, id string) (*domain.Document, error) {
	raw, err := s.repo.txn.First(tableDocuments, "id", id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrDocumentNotFound
	}
	return raw.(*domain.Document), nil
}

func (s *documentStore) ListByCollection(_ context.Context, collectionID string) ([]*domain.Document, error) {
	it, err := s.repo.txn.Get(tableDocuments, "collection", collectionID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var out []*domain.Document
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*domain.Document))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *documentStore) GetByRemoteID(_ context.Context, collectionID, remoteID string) (*domain.Document, error) {
	raw, err := s.repo.txn.First(tableDocuments, "remote", collectionID, remoteID)
	if err != nil {
		return nil, fmt.Errorf("get document by remote id: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrDocumentNotFound
	}
	return raw.(*domain.Document), nil
}

func (s *documentStore) Save(_ context.Context, document *domain.Document) error {
	if err := s.repo.txn.Insert(tableDocuments, document); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (s *documentStore) Delete(ctx context.Context, id string) error {
	document, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.txn.Delete(tableDocuments, document); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

type documentVersionStore struct{ repo *repository }

func (s *documentVersionStore) Get(_ context.Context, id string) (*domain.DocumentVersion, error) {
	raw, err := s.repo.txn.First(tableDocumentVersions, "id", id)
	if err != nil {
		return nil, fmt.Errorf("get document version: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrDocumentVersionNotFound
	}
	return raw.(*domain.DocumentVersion), nil
}

func (s *documentVersionStore) ListByDocument(_ context.Context, documentID string) ([]*domain.DocumentVersion, error) {
	it, err := s.repo.txn.Get(tableDocumentVersions, "document", documentID)
	if err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	var out []*domain.DocumentVersion
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*domain.DocumentVersion))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *documentVersionStore) LatestByDocument(ctx context.Context, documentID string) (*domain.DocumentVersion, error) {
	versions, err := s.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Latest {
			return v, nil
		}
	}
	return nil, domain.ErrDocumentVersionNotFound
}

func (s *documentVersionStore) SaveAsLatest(ctx context.Context, version *domain.DocumentVersion) error {
	versions, err := s.ListByDocument(ctx, version.DocumentID)
	if err != nil {
		return err
	}
	for _, prev := range versions {
		if prev.Latest && prev.ID != version.ID {
			demoted := *prev
			demoted.Latest = false
			if err := s.repo.txn.Insert(tableDocumentVersions, &demoted); err != nil {
				return fmt.Errorf("demote document version: %w", err)
			}
		}
	}
	version.Latest = true
	if err := s.repo.txn.Insert(tableDocumentVersions, version); err != nil {
		return fmt.Errorf("save document version: %w", err)
	}
	return nil
}

func (s *documentVersionStore) FindLatestByBlockingKeys(_ context.Context, collectionID string, keys []string, excludeDocumentID string) ([]*domain.DocumentVersion, error) {
	seen := map[string]bool{}
	var out []*domain.DocumentVersion
	for _, key := range keys {
		it, err := s.repo.txn.Get(tableDocumentVersions, "blocking", key)
		if err != nil {
			return nil, fmt.Errorf("blocking key lookup: %w", err)
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			v := raw.(*domain.DocumentVersion)
			if !v.Latest || v.CollectionID != collectionID || v.DocumentID == excludeDocumentID {
				continue
			}
			if seen[v.ID] {
				continue
			}
			seen[v.ID] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *documentVersionStore) DeleteByDocument(ctx context.Context, documentID string) error {
	versions, err := s.ListByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := s.repo.txn.Delete(tableDocumentVersions, v); err != nil {
			return fmt.Errorf("delete document version: %w", err)
		}
	}
	return nil
}

type chunkStore struct{ repo *repository }

func (s *chunkStore) Save(_ context.Context, chunk *domain.Chunk) error {
	if err := s.repo.txn.Insert(tableChunks, chunk); err != nil {
		return fmt.Errorf("save chunk: %w", err)
	}
	return nil
}

func (s *chunkStore) ListByDocument(_ context.Context, documentID string) ([]*domain.Chunk, error) {
	it, err := s.repo.txn.Get(tableChunks, "document", documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	var out []*domain.Chunk
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*domain.Chunk))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *chunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	chunks, err := s.ListByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := s.repo.txn.Delete(tableChunks, chunk); err != nil {
			return fmt.Errorf("delete chunk: %w", err)
		}
	}
	return nil
}

type fileStore struct{ repo *repository }

func (s *fileStore) Get(_ context.Context, id string) (*domain.File, error) {
	raw, err := s.repo.txn.First(tableFiles, "id", id)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrFileNotFound
	}
	return raw.(*domain.File), nil
}

func (s *fileStore) Save(_ context.Context, file *domain.File) error {
	if err := s.repo.txn.Insert(tableFiles, file); err != nil {
		return fmt.Errorf("save file: %w", err)
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	file, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.txn.Delete(tableFiles, file); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

type jobStore struct{ repo *repository }

func (s *jobStore) Get(_ context.Context, id string) (*domain.BackgroundJob, error) {
	raw, err := s.repo.txn.First(tableJobs, "id", id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrJobNotFound
	}
	return raw.(*domain.BackgroundJob), nil
}

func (s *jobStore) Save(_ context.Context, job *domain.BackgroundJob) error {
	if err := s.repo.txn.Insert(tableJobs, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *jobStore) List(_ context.Context) ([]*domain.BackgroundJob, error) {
	it, err := s.repo.txn.Get(tableJobs, "id")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var out []*domain.BackgroundJob
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*domain.BackgroundJob))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out, nil
}

// OldestEnqueued honours the single-flight rule: a job is only claimable
// when no Processing job shares its name and target.
func (s *jobStore) OldestEnqueued(ctx context.Context) (*domain.BackgroundJob, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	processing := map[string]bool{}
	for _, job := range jobs {
		if job.Status == domain.JobStatusProcessing {
			processing[job.Name+"\x00"+job.Target()] = true
		}
	}
	for _, job := range jobs {
		if job.Status != domain.JobStatusEnqueued {
			continue
		}
		if processing[job.Name+"\x00"+job.Target()] {
			continue
		}
		return job, nil
	}
	return nil, nil
}

func (s *jobStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, job := range jobs {
		if !job.Finished() || job.FinishedProcessingAt == nil || !job.FinishedProcessingAt.Before(cutoff) {
			continue
		}
		if err := s.repo.txn.Delete(tableJobs, job); err != nil {
			return removed, fmt.Errorf("delete job: %w", err)
		}
		removed++
	}
	return removed, nil
}

type syncStateStore struct{ repo *repository }

func (s *syncStateStore) Get(_ context.Context, collectionID string) (*domain.SyncState, error) {
	raw, err := s.repo.txn.First(tableSyncStates, "id", collectionID)
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrCollectionNotFound
	}
	return raw.(*domain.SyncState), nil
}

func (s *syncStateStore) Save(_ context.Context, state *domain.SyncState) error {
	if err := s.repo.txn.Insert(tableSyncStates, state); err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

func (s *syncStateStore) Delete(ctx context.Context, collectionID string) error {
	state, err := s.Get(ctx, collectionID)
	if err != nil {
		return err
	}
	if err := s.repo.txn.Delete(tableSyncStates, state); err != nil {
		return fmt.Errorf("delete sync state: %w", err)
	}
	return nil
}

type authStateStore struct{ repo *repository }

func (s *authStateStore) Get(_ context.Context, nonce string) (*driven.AuthorizationState, error) {
	raw, err := s.repo.txn.First(tableAuthStates, "id", nonce)
	if err != nil {
		return nil, fmt.Errorf("get authorization state: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrAuthorizationStateNotFound
	}
	return raw.(*driven.AuthorizationState), nil
}

func (s *authStateStore) Save(_ context.Context, state *driven.AuthorizationState) error {
	if err := s.repo.txn.Insert(tableAuthStates, state); err != nil {
		return fmt.Errorf("save authorization state: %w", err)
	}
	return nil
}

func (s *authStateStore) Delete(ctx context.Context, nonce string) error {
	state, err := s.Get(ctx, nonce)
	if err != nil {
		return err
	}
	if err := s.repo.txn.Delete(tableAuthStates, state); err != nil {
		return fmt.Errorf("delete authorization state: %w", err)
	}
	return nil
}
