package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FileStore = (*fileStore)(nil)

// fileStore implements driven.FileStore using PostgreSQL
type fileStore struct {
	r *repository
}

// Save creates or updates a file
func (s *fileStore) Save(ctx context.Context, file *domain.File) error {
	refs := file.References
	if refs == nil {
		refs = []domain.FileReference{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("marshal references: %w", err)
	}

	query := `
		INSERT INTO files (id, content, refs, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			refs = EXCLUDED.refs
	`

	_, err = s.r.tx.ExecContext(ctx, query,
		file.ID,
		file.Content,
		refsJSON,
		file.CreatedAt,
	)
	return err
}

// Get retrieves a file by ID
func (s *fileStore) Get(ctx context.Context, id string) (*domain.File, error) {
	query := `SELECT id, content, refs, created_at FROM files WHERE id = $1`

	var file domain.File
	var refsJSON []byte
	err := s.r.tx.QueryRowContext(ctx, query, id).Scan(
		&file.ID,
		&file.Content,
		&refsJSON,
		&file.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(refsJSON, &file.References); err != nil {
		return nil, fmt.Errorf("unmarshal references: %w", err)
	}
	return &file, nil
}

// Delete deletes a file
func (s *fileStore) Delete(ctx context.Context, id string) error {
	result, err := s.r.tx.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}
