package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentVersionStore = (*documentVersionStore)(nil)

// documentVersionStore implements driven.DocumentVersionStore using PostgreSQL
type documentVersionStore struct {
	r *repository
}

const documentVersionColumns = `
	id, document_id, collection_id, collection_version_id, previous_version_id,
	content, content_blocking_keys, referenced_documents, content_summary,
	created_by, remote_id, remote_version_id, latest, created_at
`

// Get retrieves a document version by ID
func (s *documentVersionStore) Get(ctx context.Context, id string) (*domain.DocumentVersion, error) {
	query := `SELECT ` + documentVersionColumns + ` FROM document_versions WHERE id = $1`

	version, err := scanDocumentVersion(s.r.tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrDocumentVersionNotFound
	}
	return version, err
}

// ListByDocument retrieves all versions of a document, oldest first
func (s *documentVersionStore) ListByDocument(ctx context.Context, documentID string) ([]*domain.DocumentVersion, error) {
	query := `
		SELECT ` + documentVersionColumns + `
		FROM document_versions
		WHERE document_id = $1
		ORDER BY created_at
	`

	return s.queryVersions(ctx, query, documentID)
}

// LatestByDocument retrieves the latest version of a document
func (s *documentVersionStore) LatestByDocument(ctx context.Context, documentID string) (*domain.DocumentVersion, error) {
	query := `
		SELECT ` + documentVersionColumns + `
		FROM document_versions
		WHERE document_id = $1 AND latest
	`

	version, err := scanDocumentVersion(s.r.tx.QueryRowContext(ctx, query, documentID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrDocumentVersionNotFound
	}
	return version, err
}

// SaveAsLatest inserts the version and moves the latest marker to it
func (s *documentVersionStore) SaveAsLatest(ctx context.Context, version *domain.DocumentVersion) error {
	contentJSON, err := json.Marshal(version.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	var referencedJSON []byte
	if len(version.ReferencedDocuments) > 0 {
		referencedJSON, err = json.Marshal(version.ReferencedDocuments)
		if err != nil {
			return fmt.Errorf("marshal referenced documents: %w", err)
		}
	}
	var summaryJSON []byte
	if version.ContentSummary != nil {
		summaryJSON, err = json.Marshal(version.ContentSummary)
		if err != nil {
			return fmt.Errorf("marshal content summary: %w", err)
		}
	}

	_, err = s.r.tx.ExecContext(ctx,
		`UPDATE document_versions SET latest = false WHERE document_id = $1 AND latest`,
		version.DocumentID,
	)
	if err != nil {
		return err
	}

	version.Latest = true
	_, err = s.r.tx.ExecContext(ctx, `
		INSERT INTO document_versions (
			id, document_id, collection_id, collection_version_id, previous_version_id,
			content, content_blocking_keys, referenced_documents, content_summary,
			created_by, remote_id, remote_version_id, latest, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true, $13)
	`,
		version.ID,
		version.DocumentID,
		version.CollectionID,
		version.CollectionVersionID,
		version.PreviousVersionID,
		contentJSON,
		pq.Array(version.ContentBlockingKeys),
		referencedJSON,
		summaryJSON,
		string(version.CreatedBy),
		version.RemoteID,
		version.RemoteVersionID,
		version.CreatedAt,
	)
	return err
}

// FindLatestByBlockingKeys returns latest versions in the collection whose
// blocking-key set intersects keys, excluding excludeDocumentID. The GIN
// index on content_blocking_keys serves the && overlap.
func (s *documentVersionStore) FindLatestByBlockingKeys(ctx context.Context, collectionID string, keys []string, excludeDocumentID string) ([]*domain.DocumentVersion, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + documentVersionColumns + `
		FROM document_versions
		WHERE collection_id = $1
		  AND latest
		  AND document_id <> $2
		  AND content_blocking_keys && $3
		ORDER BY created_at
	`

	return s.queryVersions(ctx, query, collectionID, excludeDocumentID, pq.Array(keys))
}

// DeleteByDocument deletes all versions of a document
func (s *documentVersionStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.r.tx.ExecContext(ctx,
		`DELETE FROM document_versions WHERE document_id = $1`, documentID)
	return err
}

func (s *documentVersionStore) queryVersions(ctx context.Context, query string, args ...any) ([]*domain.DocumentVersion, error) {
	rows, err := s.r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*domain.DocumentVersion
	for rows.Next() {
		version, err := scanDocumentVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func scanDocumentVersion(row rowScanner) (*domain.DocumentVersion, error) {
	var version domain.DocumentVersion
	var contentJSON, referencedJSON, summaryJSON []byte
	var blockingKeys pq.StringArray
	var createdBy string

	err := row.Scan(
		&version.ID,
		&version.DocumentID,
		&version.CollectionID,
		&version.CollectionVersionID,
		&version.PreviousVersionID,
		&contentJSON,
		&blockingKeys,
		&referencedJSON,
		&summaryJSON,
		&createdBy,
		&version.RemoteID,
		&version.RemoteVersionID,
		&version.Latest,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contentJSON, &version.Content); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	if len(referencedJSON) > 0 {
		if err := json.Unmarshal(referencedJSON, &version.ReferencedDocuments); err != nil {
			return nil, fmt.Errorf("unmarshal referenced documents: %w", err)
		}
	}
	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &version.ContentSummary); err != nil {
			return nil, fmt.Errorf("unmarshal content summary: %w", err)
		}
	}
	version.ContentBlockingKeys = []string(blockingKeys)
	if len(version.ContentBlockingKeys) == 0 {
		version.ContentBlockingKeys = nil
	}
	version.CreatedBy = domain.Creator(createdBy)

	return &version, nil
}
