package driving

import (
	"context"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// CreateDocumentOptions tune the create pipeline.
type CreateDocumentOptions struct {
	// SkipDuplicateCheck bypasses blocking-key dedup.
	SkipDuplicateCheck bool

	// ExemptMissingReferences lists document ids whose absence is tolerated,
	// to support forward references within the same batch.
	ExemptMissingReferences []string

	// CreatedBy defaults to domain.CreatorUser.
	CreatedBy domain.Creator

	// RemoteID/RemoteVersionID are set by the sync engine for
	// connector-sourced documents.
	RemoteID        string
	RemoteVersionID string
}

// DocumentWithVersion pairs a document with one of its versions.
type DocumentWithVersion struct {
	Document *domain.Document        `json:"document"`
	Version  *domain.DocumentVersion `json:"version"`
}

// DocumentService is the document usecase boundary. Every mutation validates
// content, derives summary and blocking keys, checks references, and
// persists atomically; failures leave no partial writes behind.
type DocumentService interface {
	// CreateDocument creates a document with its first version.
	CreateDocument(ctx context.Context, collectionID string, content any, opts CreateDocumentOptions) (*DocumentWithVersion, error)

	// CreateDocumentVersion appends a version. expectedPreviousVersionID must
	// equal the document's current latest version id or the call fails with
	// domain.ErrVersionIDNotMatching.
	CreateDocumentVersion(ctx context.Context, collectionID, documentID, expectedPreviousVersionID string, content any, opts CreateDocumentOptions) (*DocumentWithVersion, error)

	// GetDocument returns the document with its latest version.
	GetDocument(ctx context.Context, documentID string) (*DocumentWithVersion, error)

	// ListDocuments returns the collection's documents with latest versions.
	ListDocuments(ctx context.Context, collectionID string) ([]*DocumentWithVersion, error)

	// DeleteDocument removes the document, its versions, chunks, and file
	// back-references (files with empty reference lists are removed too).
	DeleteDocument(ctx context.Context, documentID string) error
}
