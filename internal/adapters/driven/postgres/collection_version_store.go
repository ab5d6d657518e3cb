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
var _ driven.CollectionVersionStore = (*collectionVersionStore)(nil)

// collectionVersionStore implements driven.CollectionVersionStore using PostgreSQL
type collectionVersionStore struct {
	r *repository
}

const collectionVersionColumns = `
	id, collection_id, previous_version_id, schema, derivation, migration_script, latest, created_at
`

// Get retrieves a collection version by ID
func (s *collectionVersionStore) Get(ctx context.Context, id string) (*domain.CollectionVersion, error) {
	query := `SELECT ` + collectionVersionColumns + ` FROM collection_versions WHERE id = $1`

	version, err := scanCollectionVersion(s.r.tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrCollectionVersionNotFound
	}
	return version, err
}

// ListByCollection retrieves all versions of a collection, oldest first
func (s *collectionVersionStore) ListByCollection(ctx context.Context, collectionID string) ([]*domain.CollectionVersion, error) {
	query := `
		SELECT ` + collectionVersionColumns + `
		FROM collection_versions
		WHERE collection_id = $1
		ORDER BY created_at
	`

	rows, err := s.r.tx.QueryContext(ctx, query, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*domain.CollectionVersion
	for rows.Next() {
		version, err := scanCollectionVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// LatestByCollection retrieves the latest version of a collection
func (s *collectionVersionStore) LatestByCollection(ctx context.Context, collectionID string) (*domain.CollectionVersion, error) {
	query := `
		SELECT ` + collectionVersionColumns + `
		FROM collection_versions
		WHERE collection_id = $1 AND latest
	`

	version, err := scanCollectionVersion(s.r.tx.QueryRowContext(ctx, query, collectionID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrCollectionVersionNotFound
	}
	return version, err
}

// SaveAsLatest inserts the version and moves the latest marker to it
func (s *collectionVersionStore) SaveAsLatest(ctx context.Context, version *domain.CollectionVersion) error {
	schemaJSON, err := json.Marshal(version.Schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	derivationJSON, err := json.Marshal(version.Derivation)
	if err != nil {
		return fmt.Errorf("marshal derivation: %w", err)
	}
	var migrationJSON []byte
	if version.MigrationScript != nil {
		migrationJSON, err = json.Marshal(version.MigrationScript)
		if err != nil {
			return fmt.Errorf("marshal migration script: %w", err)
		}
	}

	_, err = s.r.tx.ExecContext(ctx,
		`UPDATE collection_versions SET latest = false WHERE collection_id = $1 AND latest`,
		version.CollectionID,
	)
	if err != nil {
		return err
	}

	version.Latest = true
	_, err = s.r.tx.ExecContext(ctx, `
		INSERT INTO collection_versions (id, collection_id, previous_version_id, schema, derivation, migration_script, latest, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7)
	`,
		version.ID,
		version.CollectionID,
		version.PreviousVersionID,
		schemaJSON,
		derivationJSON,
		migrationJSON,
		version.CreatedAt,
	)
	return err
}

// DeleteByCollection deletes all versions of a collection
func (s *collectionVersionStore) DeleteByCollection(ctx context.Context, collectionID string) error {
	_, err := s.r.tx.ExecContext(ctx,
		`DELETE FROM collection_versions WHERE collection_id = $1`, collectionID)
	return err
}

func scanCollectionVersion(row rowScanner) (*domain.CollectionVersion, error) {
	var version domain.CollectionVersion
	var schemaJSON, derivationJSON, migrationJSON []byte

	err := row.Scan(
		&version.ID,
		&version.CollectionID,
		&version.PreviousVersionID,
		&schemaJSON,
		&derivationJSON,
		&migrationJSON,
		&version.Latest,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(schemaJSON, &version.Schema); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if err := json.Unmarshal(derivationJSON, &version.Derivation); err != nil {
		return nil, fmt.Errorf("unmarshal derivation: %w", err)
	}
	if len(migrationJSON) > 0 {
		if err := json.Unmarshal(migrationJSON, &version.MigrationScript); err != nil {
			return nil, fmt.Errorf("unmarshal migration script: %w", err)
		}
	}
	return &version, nil
}
