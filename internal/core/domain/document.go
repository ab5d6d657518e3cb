package domain

import "time"

// Creator identifies who produced a document version.
type Creator string

const (
	CreatorUser      Creator = "user"
	CreatorAssistant Creator = "assistant"
	CreatorConnector Creator = "connector"
)

// Document is the stable identity of a stored record. Content lives only in
// its versions.
type Document struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`

	// RemoteID is non-empty only for connector-sourced documents.
	RemoteID string `json:"remote_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DocumentRefTarget is an extracted DocumentRef value from content.
type DocumentRefTarget struct {
	CollectionID string `json:"collection_id,omitempty"`
	DocumentID   string `json:"document_id"`
}

// DocumentVersion is one link of a document's content chain.
// PreviousVersionID is empty for the first version. "Latest" is resolved by
// an index maintained on insert, never by chain walk.
type DocumentVersion struct {
	ID                  string              `json:"id"`
	DocumentID          string              `json:"document_id"`
	CollectionID        string              `json:"collection_id"`
	CollectionVersionID string              `json:"collection_version_id"`
	PreviousVersionID   string              `json:"previous_version_id,omitempty"`
	Content             any                 `json:"content"`
	ContentBlockingKeys []string            `json:"content_blocking_keys,omitempty"`
	ReferencedDocuments []DocumentRefTarget `json:"referenced_documents,omitempty"`
	ContentSummary      *ContentSummary     `json:"content_summary,omitempty"`
	CreatedBy           Creator             `json:"created_by"`
	RemoteID            string              `json:"remote_id,omitempty"`
	RemoteVersionID     string              `json:"remote_version_id,omitempty"`

	// Latest marks the version with no successor. Maintained by the
	// repository on every insert.
	Latest bool `json:"latest"`

	CreatedAt time.Time `json:"created_at"`
}

// Chunk is a derived text-search fragment of a document version. Chunks are
// persisted atomically with the version they were derived from.
type Chunk struct {
	ID                string `json:"id"`
	DocumentID        string `json:"document_id"`
	DocumentVersionID string `json:"document_version_id"`
	CollectionID      string `json:"collection_id"`
	Content           string `json:"content"`
	Position          int    `json:"position"`
}

// FileReference is one back-reference from a document version to a file.
type FileReference struct {
	CollectionID      string `json:"collection_id"`
	DocumentID        string `json:"document_id"`
	DocumentVersionID string `json:"document_version_id"`
}

// File is immutable byte content with explicit back-references. A file is
// deleted only when its reference list becomes empty.
type File struct {
	ID         string          `json:"id"`
	Content    []byte          `json:"content"`
	References []FileReference `json:"references"`
	CreatedAt  time.Time       `json:"created_at"`
}
