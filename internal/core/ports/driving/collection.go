package driving

import (
	"context"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// CreateCollectionRequest describes a new collection with its first version.
type CreateCollectionRequest struct {
	Settings   domain.CollectionSettings
	Schema     *domain.Schema
	Derivation domain.DerivationSettings
	Remote     *domain.RemoteBinding
}

// CreateCollectionVersionRequest evolves a collection's schema. For
// non-remote collections a migration script may be supplied; it is applied
// to every document's latest content within the same transaction.
type CreateCollectionVersionRequest struct {
	CollectionID    string
	Schema          *domain.Schema
	Derivation      domain.DerivationSettings
	MigrationScript *domain.ScriptModule
}

// CollectionWithVersion pairs a collection with one of its versions.
type CollectionWithVersion struct {
	Collection *domain.Collection        `json:"collection"`
	Version    *domain.CollectionVersion `json:"version"`
}

// CollectionService is the collection usecase boundary.
type CollectionService interface {
	CreateCollection(ctx context.Context, req CreateCollectionRequest) (*CollectionWithVersion, error)

	// UpdateSettings replaces the collection settings.
	UpdateSettings(ctx context.Context, collectionID string, settings domain.CollectionSettings) (*domain.Collection, error)

	// CreateCollectionVersion appends a schema version and, when a migration
	// script is given, migrates every document to the new schema.
	CreateCollectionVersion(ctx context.Context, req CreateCollectionVersionRequest) (*domain.CollectionVersion, error)

	GetCollection(ctx context.Context, collectionID string) (*CollectionWithVersion, error)
	ListCollections(ctx context.Context) ([]*domain.Collection, error)

	// DeleteCollection cascades to versions, documents, their versions,
	// chunks, and file references.
	DeleteCollection(ctx context.Context, collectionID string) error
}

// BatchEntry is one collection or document to create in a linked batch.
// Proto ids are placeholder identifiers ("proto:...") that other entries may
// reference before the real ids exist.
type BatchEntry struct {
	// ProtoCollectionID names a collection to create.
	ProtoCollectionID string
	Collection        *CreateCollectionRequest

	// ProtoDocumentID names a document to create in ProtoCollectionID (or an
	// existing collection id).
	ProtoDocumentID string
	InCollection    string
	Content         any
}

// BatchResult maps proto ids to the assigned identifiers.
type BatchResult struct {
	CollectionIDs map[string]string `json:"collection_ids"`
	DocumentIDs   map[string]string `json:"document_ids"`
}

// Linker creates collections and documents that forward-reference each other
// within one batch: pass one assigns real identifiers to placeholders, pass
// two rewrites structural references before anything is validated or stored.
type Linker interface {
	CreateBatch(ctx context.Context, entries []BatchEntry) (*BatchResult, error)
}
