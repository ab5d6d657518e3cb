package postgres

import (
	"context"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChunkStore = (*chunkStore)(nil)

// chunkStore implements driven.ChunkStore using PostgreSQL
type chunkStore struct {
	r *repository
}

// Save creates or updates a chunk
func (s *chunkStore) Save(ctx context.Context, chunk *domain.Chunk) error {
	query := `
		INSERT INTO chunks (id, document_id, document_version_id, collection_id, content, pos)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			document_version_id = EXCLUDED.document_version_id,
			content = EXCLUDED.content,
			pos = EXCLUDED.pos
	`

	_, err := s.r.tx.ExecContext(ctx, query,
		chunk.ID,
		chunk.DocumentID,
		chunk.DocumentVersionID,
		chunk.CollectionID,
		chunk.Content,
		chunk.Position,
	)
	return err
}

// ListByDocument retrieves a document's chunks in position order
func (s *chunkStore) ListByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	query := `
		SELECT id, document_id, document_version_id, collection_id, content, pos
		FROM chunks
		WHERE document_id = $1
		ORDER BY pos
	`

	rows, err := s.r.tx.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.DocumentVersionID,
			&chunk.CollectionID,
			&chunk.Content,
			&chunk.Position,
		)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// DeleteByDocument deletes all chunks of a document
func (s *chunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.r.tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}
