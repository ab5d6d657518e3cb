package driven

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// TxManager runs functions inside serializable transactions. The data
// snapshot carries a monotonic version stamp: at commit time the manager
// compares the stamp against the one observed at transaction start and
// rejects the commit with domain.ErrTxConflict if another transaction
// committed in between. Retrying is the caller's responsibility (or use
// RunWithRetry). This is the sole atomicity/isolation mechanism; no
// component writes outside of it.
type TxManager interface {
	// RunInSerializableTransaction executes fn against a transactional
	// repository facade. A nil return commits, any error rolls back and is
	// returned unchanged.
	RunInSerializableTransaction(ctx context.Context, fn func(Repository) error) error
}

// RunWithRetry runs fn through tm, retrying commit conflicts up to
// maxAttempts with a short backoff. Any other error aborts immediately.
func RunWithRetry(ctx context.Context, tm TxManager, maxAttempts int, fn func(Repository) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = tm.RunInSerializableTransaction(ctx, fn)
		if !errors.Is(err, domain.ErrTxConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
	return err
}

// Repository is the transactional facade handed to usecases. All record sets
// observe the same snapshot; savepoints checkpoint the whole snapshot.
type Repository interface {
	Collections() CollectionStore
	CollectionVersions() CollectionVersionStore
	Documents() DocumentStore
	DocumentVersions() DocumentVersionStore
	Chunks() ChunkStore
	Files() FileStore
	Jobs() JobStore
	SyncStates() SyncStateStore
	AuthorizationStates() AuthorizationStateStore

	// CreateSavepoint checkpoints the current transaction state and returns
	// a savepoint id valid within this transaction.
	CreateSavepoint() (string, error)

	// RollbackToSavepoint restores every entity (and the pending write set)
	// to the checkpointed state. Savepoints created after the given one are
	// discarded.
	RollbackToSavepoint(id string) error
}

// CollectionStore persists collections.
type CollectionStore interface {
	Get(ctx context.Context, id string) (*domain.Collection, error)
	List(ctx context.Context) ([]*domain.Collection, error)
	Save(ctx context.Context, collection *domain.Collection) error
	Delete(ctx context.Context, id string) error
}

// CollectionVersionStore persists collection versions and maintains the
// latest-per-collection index on save.
type CollectionVersionStore interface {
	Get(ctx context.Context, id string) (*domain.CollectionVersion, error)
	ListByCollection(ctx context.Context, collectionID string) ([]*domain.CollectionVersion, error)
	LatestByCollection(ctx context.Context, collectionID string) (*domain.CollectionVersion, error)
	// SaveAsLatest inserts the version and moves the latest marker to it.
	SaveAsLatest(ctx context.Context, version *domain.CollectionVersion) error
	DeleteByCollection(ctx context.Context, collectionID string) error
}

// DocumentStore persists document identities.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*domain.Document, error)
	ListByCollection(ctx context.Context, collectionID string) ([]*domain.Document, error)
	GetByRemoteID(ctx context.Context, collectionID, remoteID string) (*domain.Document, error)
	Save(ctx context.Context, document *domain.Document) error
	Delete(ctx context.Context, id string) error
}

// DocumentVersionStore persists document versions. The latest-per-document
// index and the blocking-key lookup are maintained by the store.
type DocumentVersionStore interface {
	Get(ctx context.Context, id string) (*domain.DocumentVersion, error)
	ListByDocument(ctx context.Context, documentID string) ([]*domain.DocumentVersion, error)
	LatestByDocument(ctx context.Context, documentID string) (*domain.DocumentVersion, error)
	// SaveAsLatest inserts the version and moves the latest marker to it.
	SaveAsLatest(ctx context.Context, version *domain.DocumentVersion) error
	// FindLatestByBlockingKeys returns latest versions in the collection
	// whose blocking-key set intersects keys, excluding excludeDocumentID.
	FindLatestByBlockingKeys(ctx context.Context, collectionID string, keys []string, excludeDocumentID string) ([]*domain.DocumentVersion, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// ChunkStore persists derived text-search chunks.
type ChunkStore interface {
	Save(ctx context.Context, chunk *domain.Chunk) error
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// FileStore persists immutable file content and its back-references.
type FileStore interface {
	Get(ctx context.Context, id string) (*domain.File, error)
	Save(ctx context.Context, file *domain.File) error
	Delete(ctx context.Context, id string) error
}

// JobStore persists background jobs.
type JobStore interface {
	Get(ctx context.Context, id string) (*domain.BackgroundJob, error)
	Save(ctx context.Context, job *domain.BackgroundJob) error
	// OldestEnqueued returns the oldest Enqueued job whose name/target has no
	// Processing job, or nil if none is claimable.
	OldestEnqueued(ctx context.Context) (*domain.BackgroundJob, error)
	List(ctx context.Context) ([]*domain.BackgroundJob, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SyncStateStore persists per-collection sync state.
type SyncStateStore interface {
	Get(ctx context.Context, collectionID string) (*domain.SyncState, error)
	Save(ctx context.Context, state *domain.SyncState) error
	Delete(ctx context.Context, collectionID string) error
}

// AuthorizationState correlates an in-flight connector authorization request
// with its PKCE verifier. Keyed by the single-use nonce embedded in the
// redirect state parameter.
type AuthorizationState struct {
	Nonce        string    `json:"nonce"`
	Connector    string    `json:"connector"`
	CollectionID string    `json:"collection_id"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthorizationStateStore persists in-flight authorization requests.
type AuthorizationStateStore interface {
	Get(ctx context.Context, nonce string) (*AuthorizationState, error)
	Save(ctx context.Context, state *AuthorizationState) error
	Delete(ctx context.Context, nonce string) error
}
