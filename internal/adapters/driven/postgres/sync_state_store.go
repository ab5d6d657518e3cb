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
var _ driven.SyncStateStore = (*syncStateStore)(nil)

// syncStateStore implements driven.SyncStateStore using PostgreSQL
type syncStateStore struct {
	r *repository
}

// Save creates or updates a collection's sync state
func (s *syncStateStore) Save(ctx context.Context, state *domain.SyncState) error {
	downJSON, err := json.Marshal(state.Down)
	if err != nil {
		return fmt.Errorf("marshal down state: %w", err)
	}
	upJSON, err := json.Marshal(state.Up)
	if err != nil {
		return fmt.Errorf("marshal up state: %w", err)
	}

	query := `
		INSERT INTO sync_states (collection_id, down, up)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection_id) DO UPDATE SET
			down = EXCLUDED.down,
			up = EXCLUDED.up
	`

	_, err = s.r.tx.ExecContext(ctx, query, state.CollectionID, downJSON, upJSON)
	return err
}

// Get retrieves a collection's sync state
func (s *syncStateStore) Get(ctx context.Context, collectionID string) (*domain.SyncState, error) {
	query := `SELECT collection_id, down, up FROM sync_states WHERE collection_id = $1`

	var state domain.SyncState
	var downJSON, upJSON []byte
	err := s.r.tx.QueryRowContext(ctx, query, collectionID).Scan(
		&state.CollectionID,
		&downJSON,
		&upJSON,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCollectionNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(downJSON, &state.Down); err != nil {
		return nil, fmt.Errorf("unmarshal down state: %w", err)
	}
	if err := json.Unmarshal(upJSON, &state.Up); err != nil {
		return nil, fmt.Errorf("unmarshal up state: %w", err)
	}
	return &state, nil
}

// Delete deletes a collection's sync state
func (s *syncStateStore) Delete(ctx context.Context, collectionID string) error {
	result, err := s.r.tx.ExecContext(ctx,
		`DELETE FROM sync_states WHERE collection_id = $1`, collectionID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrCollectionNotFound
	}
	return nil
}
