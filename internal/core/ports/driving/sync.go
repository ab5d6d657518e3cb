package driving

import (
	"context"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// SyncService is the reconciliation usecase boundary.
type SyncService interface {
	// DownSync pulls the connector delta for the collection and reconciles
	// it into local state. The batch is all-or-nothing: any item failure
	// rolls the batch back, records the aggregated error on the collection's
	// sync state, and leaves the cursor unchanged.
	DownSync(ctx context.Context, collectionID string) (*domain.SyncResult, error)

	// UpSync pushes local changes to the connector. The shipped connectors
	// are pull-only; requesting up-sync on one returns
	// domain.ErrConnectorDoesNotSupportUpSyncing.
	UpSync(ctx context.Context, collectionID string) (*domain.SyncResult, error)

	// GetSyncState returns the collection's recorded sync state.
	GetSyncState(ctx context.Context, collectionID string) (*domain.SyncState, error)
}

// AuthorizeResponse carries the URL the end user must visit and the state
// nonce correlating the eventual callback.
type AuthorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// ConnectorAuthService drives the PKCE authorization flow for a collection's
// remote binding.
type ConnectorAuthService interface {
	// BeginAuthorization issues the authorization URL with a fresh code
	// challenge and stores the verifier keyed by a single-use nonce.
	BeginAuthorization(ctx context.Context, collectionID string) (*AuthorizeResponse, error)

	// CompleteAuthorization exchanges the callback code (correlated via the
	// state nonce) for tokens and stores them on the binding.
	CompleteAuthorization(ctx context.Context, state, code string) error
}

// FileService stores and resolves immutable files.
type FileService interface {
	// CreateFile stores content and returns the file. Files start
	// unreferenced; references accrue when document versions cite them.
	CreateFile(ctx context.Context, content []byte) (*domain.File, error)

	GetFile(ctx context.Context, fileID string) (*domain.File, error)
}

// JobService enqueues and inspects background jobs.
type JobService interface {
	// EnqueueSyncDown schedules a down-sync for the collection.
	EnqueueSyncDown(ctx context.Context, collectionID string) (*domain.BackgroundJob, error)

	GetJob(ctx context.Context, jobID string) (*domain.BackgroundJob, error)
}
