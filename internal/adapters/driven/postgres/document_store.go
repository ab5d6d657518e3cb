package postgres

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*documentStore)(nil)

// documentStore implements driven.DocumentStore using PostgreSQL
type documentStore struct {
	r *repository
}

// Save creates or updates a document
func (s *documentStore) Save(ctx context.Context, document *domain.Document) error {
	query := `
		INSERT INTO documents (id, collection_id, remote_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			collection_id = EXCLUDED.collection_id,
			remote_id = EXCLUDED.remote_id
	`

	_, err := s.r.tx.ExecContext(ctx, query,
		document.ID,
		document.CollectionID,
		document.RemoteID,
		document.CreatedAt,
	)
	return err
}

// Get retrieves a document by ID
func (s *documentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	query := `SELECT id, collection_id, remote_id, created_at FROM documents WHERE id = $1`

	var document domain.Document
	err := s.r.tx.QueryRowContext(ctx, query, id).Scan(
		&document.ID,
		&document.CollectionID,
		&document.RemoteID,
		&document.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &document, nil
}

// GetByRemoteID retrieves a connector-sourced document by its remote id
func (s *documentStore) GetByRemoteID(ctx context.Context, collectionID, remoteID string) (*domain.Document, error) {
	query := `
		SELECT id, collection_id, remote_id, created_at
		FROM documents
		WHERE collection_id = $1 AND remote_id = $2 AND remote_id <> ''
	`

	var document domain.Document
	err := s.r.tx.QueryRowContext(ctx, query, collectionID, remoteID).Scan(
		&document.ID,
		&document.CollectionID,
		&document.RemoteID,
		&document.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &document, nil
}

// ListByCollection retrieves all documents of a collection, oldest first
func (s *documentStore) ListByCollection(ctx context.Context, collectionID string) ([]*domain.Document, error) {
	query := `
		SELECT id, collection_id, remote_id, created_at
		FROM documents
		WHERE collection_id = $1
		ORDER BY created_at
	`

	rows, err := s.r.tx.QueryContext(ctx, query, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []*domain.Document
	for rows.Next() {
		var document domain.Document
		err := rows.Scan(
			&document.ID,
			&document.CollectionID,
			&document.RemoteID,
			&document.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		documents = append(documents, &document)
	}
	return documents, rows.Err()
}

// Delete deletes a document
func (s *documentStore) Delete(ctx context.Context, id string) error {
	result, err := s.r.tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
