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
var _ driven.CollectionStore = (*collectionStore)(nil)

// collectionStore implements driven.CollectionStore using PostgreSQL.
// Connector credentials are stored encrypted.
type collectionStore struct {
	r *repository
}

// Save creates or updates a collection
func (s *collectionStore) Save(ctx context.Context, collection *domain.Collection) error {
	settingsJSON, err := json.Marshal(collection.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	var remoteConnector sql.NullString
	var remoteSettings []byte
	var remoteAuth []byte
	if collection.Remote != nil {
		remoteConnector = NullString(collection.Remote.Connector)
		remoteSettings, err = json.Marshal(collection.Remote.Settings)
		if err != nil {
			return fmt.Errorf("marshal remote settings: %w", err)
		}
		if collection.Remote.Auth != nil {
			remoteAuth, err = s.r.enc.Encrypt(collection.Remote.Auth)
			if err != nil {
				return fmt.Errorf("encrypt remote auth: %w", err)
			}
		}
	}

	query := `
		INSERT INTO collections (id, settings, remote_connector, remote_settings, remote_auth, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			settings = EXCLUDED.settings,
			remote_connector = EXCLUDED.remote_connector,
			remote_settings = EXCLUDED.remote_settings,
			remote_auth = EXCLUDED.remote_auth
	`

	_, err = s.r.tx.ExecContext(ctx, query,
		collection.ID,
		settingsJSON,
		remoteConnector,
		remoteSettings,
		remoteAuth,
		collection.CreatedAt,
	)
	return err
}

// Get retrieves a collection by ID
func (s *collectionStore) Get(ctx context.Context, id string) (*domain.Collection, error) {
	query := `
		SELECT id, settings, remote_connector, remote_settings, remote_auth, created_at
		FROM collections
		WHERE id = $1
	`

	collection, err := s.scanOne(s.r.tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrCollectionNotFound
	}
	return collection, err
}

// List retrieves all collections
func (s *collectionStore) List(ctx context.Context) ([]*domain.Collection, error) {
	query := `
		SELECT id, settings, remote_connector, remote_settings, remote_auth, created_at
		FROM collections
		ORDER BY created_at
	`

	rows, err := s.r.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collections []*domain.Collection
	for rows.Next() {
		collection, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, collection)
	}
	return collections, rows.Err()
}

// Delete deletes a collection
func (s *collectionStore) Delete(ctx context.Context, id string) error {
	result, err := s.r.tx.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *collectionStore) scanOne(row rowScanner) (*domain.Collection, error) {
	var collection domain.Collection
	var settingsJSON []byte
	var remoteConnector sql.NullString
	var remoteSettings, remoteAuth []byte

	err := row.Scan(
		&collection.ID,
		&settingsJSON,
		&remoteConnector,
		&remoteSettings,
		&remoteAuth,
		&collection.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(settingsJSON, &collection.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if remoteConnector.Valid {
		remote := &domain.RemoteBinding{Connector: remoteConnector.String}
		if len(remoteSettings) > 0 {
			if err := json.Unmarshal(remoteSettings, &remote.Settings); err != nil {
				return nil, fmt.Errorf("unmarshal remote settings: %w", err)
			}
		}
		if len(remoteAuth) > 0 {
			var auth domain.AuthState
			if err := s.r.enc.Decrypt(remoteAuth, &auth); err != nil {
				return nil, fmt.Errorf("decrypt remote auth: %w", err)
			}
			remote.Auth = &auth
		}
		collection.Remote = remote
	}

	return &collection, nil
}
