package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driving"
	"github.com/custodia-labs/docbase-core/internal/schema"
)

// Ensure collectionService implements CollectionService
var _ driving.CollectionService = (*collectionService)(nil)

// collectionService implements the CollectionService interface.
type collectionService struct {
	tx         driven.TxManager
	engine     driven.ScriptEngine
	connectors driven.ConnectorRegistry
	logger     *slog.Logger
}

// CollectionServiceConfig holds dependencies for the collection service.
type CollectionServiceConfig struct {
	Tx         driven.TxManager
	Engine     driven.ScriptEngine
	Connectors driven.ConnectorRegistry
	Logger     *slog.Logger
}

// NewCollectionService creates a new CollectionService.
func NewCollectionService(cfg CollectionServiceConfig) driving.CollectionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &collectionService{
		tx:         cfg.Tx,
		engine:     cfg.Engine,
		connectors: cfg.Connectors,
		logger:     logger,
	}
}

// compileDerivation ensures every script of the derivation settings carries a
// verified compiled form before it is persisted.
func compileDerivation(engine driven.ScriptEngine, derivation domain.DerivationSettings) (domain.DerivationSettings, error) {
	compiled, err := engine.Compile(derivation.SummaryGetter.Source)
	if err != nil {
		return derivation, fmt.Errorf("summary getter: %w", err)
	}
	derivation.SummaryGetter = compiled

	if derivation.BlockingKeysGetter != nil {
		compiled, err := engine.Compile(derivation.BlockingKeysGetter.Source)
		if err != nil {
			return derivation, fmt.Errorf("blocking keys getter: %w", err)
		}
		derivation.BlockingKeysGetter = &compiled
	}

	if derivation.RemoteConverters != nil {
		converters := *derivation.RemoteConverters
		compiled, err := engine.Compile(converters.FromRemoteDocument.Source)
		if err != nil {
			return derivation, fmt.Errorf("fromRemoteDocument converter: %w", err)
		}
		converters.FromRemoteDocument = compiled
		derivation.RemoteConverters = &converters
	}
	return derivation, nil
}

// CreateCollection creates a collection with its first schema version.
func (s *collectionService) CreateCollection(ctx context.Context, req driving.CreateCollectionRequest) (*driving.CollectionWithVersion, error) {
	if req.Schema == nil {
		return nil, fmt.Errorf("schema is required")
	}
	if err := req.Schema.Check(); err != nil {
		return nil, fmt.Errorf("checking schema: %w", err)
	}

	derivation, err := compileDerivation(s.engine, req.Derivation)
	if err != nil {
		return nil, err
	}

	if err := checkRemoteBinding(s.connectors, req.Remote, derivation); err != nil {
		return nil, err
	}

	var result *driving.CollectionWithVersion
	err = driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		now := time.Now().UTC()
		collection := &domain.Collection{
			ID:        domain.NewID(),
			Settings:  req.Settings,
			Remote:    req.Remote,
			CreatedAt: now,
		}
		if err := repo.Collections().Save(ctx, collection); err != nil {
			return err
		}

		version := &domain.CollectionVersion{
			ID:           domain.NewID(),
			CollectionID: collection.ID,
			Schema:       req.Schema,
			Derivation:   derivation,
			CreatedAt:    now,
		}
		if err := repo.CollectionVersions().SaveAsLatest(ctx, version); err != nil {
			return err
		}

		if req.Remote != nil {
			if err := repo.SyncStates().Save(ctx, domain.NewSyncState(collection.ID)); err != nil {
				return err
			}
		}

		result = &driving.CollectionWithVersion{Collection: collection, Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collection created",
		"collection_id", result.Collection.ID,
		"name", req.Settings.Name,
		"remote", req.Remote != nil)
	return result, nil
}

// UpdateSettings replaces the collection settings without touching the
// schema chain.
func (s *collectionService) UpdateSettings(ctx context.Context, collectionID string, settings domain.CollectionSettings) (*domain.Collection, error) {
	var result *domain.Collection
	err := driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, collectionID)
		if err != nil {
			return err
		}
		updated := *collection
		updated.Settings = settings
		if err := repo.Collections().Save(ctx, &updated); err != nil {
			return err
		}
		result = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateCollectionVersion appends a schema version. When a migration script
// is given, every document's latest content is transformed and re-validated
// against the new schema within the same transaction; one failing document
// rolls the whole evolution back.
func (s *collectionService) CreateCollectionVersion(ctx context.Context, req driving.CreateCollectionVersionRequest) (*domain.CollectionVersion, error) {
	if req.Schema == nil {
		return nil, fmt.Errorf("schema is required")
	}
	if err := req.Schema.Check(); err != nil {
		return nil, fmt.Errorf("checking schema: %w", err)
	}

	derivation, err := compileDerivation(s.engine, req.Derivation)
	if err != nil {
		return nil, err
	}

	var migration *domain.ScriptModule
	if req.MigrationScript != nil {
		compiled, err := s.engine.Compile(req.MigrationScript.Source)
		if err != nil {
			return nil, fmt.Errorf("migration script: %w", err)
		}
		migration = &compiled
	}

	var result *domain.CollectionVersion
	err = driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, req.CollectionID)
		if err != nil {
			return err
		}
		if collection.Remote != nil && migration != nil {
			return domain.ErrRemoteCollection
		}

		previous, err := repo.CollectionVersions().LatestByCollection(ctx, req.CollectionID)
		if err != nil {
			return err
		}

		version := &domain.CollectionVersion{
			ID:                domain.NewID(),
			CollectionID:      req.CollectionID,
			PreviousVersionID: previous.ID,
			Schema:            req.Schema,
			Derivation:        derivation,
			MigrationScript:   migration,
			CreatedAt:         time.Now().UTC(),
		}
		if err := repo.CollectionVersions().SaveAsLatest(ctx, version); err != nil {
			return err
		}

		if migration != nil {
			if err := s.migrateDocuments(ctx, repo, version); err != nil {
				return err
			}
		}

		result = version
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collection version created",
		"collection_id", req.CollectionID,
		"version_id", result.ID,
		"migrated", migration != nil)
	return result, nil
}

// migrateDocuments runs the version's migration script over every document's
// latest content and appends the migrated content as a new document version.
func (s *collectionService) migrateDocuments(ctx context.Context, repo driven.Repository, cv *domain.CollectionVersion) error {
	documents, err := repo.Documents().ListByCollection(ctx, cv.CollectionID)
	if err != nil {
		return err
	}

	for _, document := range documents {
		latest, err := repo.DocumentVersions().LatestByDocument(ctx, document.ID)
		if err != nil {
			return err
		}

		migrated, err := s.engine.Execute(ctx, *cv.MigrationScript, latest.Content)
		if err != nil {
			return fmt.Errorf("migrating document %s: %w", document.ID, err)
		}

		// Content already passed reference checks; dedup is skipped because
		// a pure reshaping cannot introduce new duplicates.
		opts := driving.CreateDocumentOptions{
			SkipDuplicateCheck: true,
			CreatedBy:          latest.CreatedBy,
		}
		prepared, err := prepareVersion(ctx, repo, s.engine, cv, migrated, opts, document.ID)
		if err != nil {
			return fmt.Errorf("migrating document %s: %w", document.ID, err)
		}

		version := &domain.DocumentVersion{
			ID:                  domain.NewID(),
			DocumentID:          document.ID,
			CollectionID:        cv.CollectionID,
			CollectionVersionID: cv.ID,
			PreviousVersionID:   latest.ID,
			Content:             prepared.Content,
			ContentBlockingKeys: prepared.BlockingKeys,
			ReferencedDocuments: prepared.References,
			ContentSummary:      prepared.Summary,
			CreatedBy:           latest.CreatedBy,
			RemoteID:            latest.RemoteID,
			RemoteVersionID:     latest.RemoteVersionID,
			CreatedAt:           time.Now().UTC(),
		}
		if err := persistVersion(ctx, repo, version, prepared); err != nil {
			return err
		}
	}
	return nil
}

// GetCollection returns the collection with its latest schema version.
func (s *collectionService) GetCollection(ctx context.Context, collectionID string) (*driving.CollectionWithVersion, error) {
	var result *driving.CollectionWithVersion
	err := s.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, collectionID)
		if err != nil {
			return err
		}
		version, err := repo.CollectionVersions().LatestByCollection(ctx, collectionID)
		if err != nil {
			return err
		}
		result = &driving.CollectionWithVersion{Collection: collection, Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListCollections returns all collections.
func (s *collectionService) ListCollections(ctx context.Context) ([]*domain.Collection, error) {
	var result []*domain.Collection
	err := s.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
		collections, err := repo.Collections().List(ctx)
		if err != nil {
			return err
		}
		result = collections
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteCollection cascades to versions, documents, chunks, and file
// back-references.
func (s *collectionService) DeleteCollection(ctx context.Context, collectionID string) error {
	err := driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, collectionID)
		if err != nil {
			return err
		}

		documents, err := repo.Documents().ListByCollection(ctx, collectionID)
		if err != nil {
			return err
		}
		for _, document := range documents {
			if err := deleteDocumentTx(ctx, repo, document); err != nil {
				return err
			}
		}

		if collection.Remote != nil {
			if err := repo.SyncStates().Delete(ctx, collectionID); err != nil && !errors.Is(err, domain.ErrCollectionNotFound) {
				return err
			}
		}
		if err := repo.CollectionVersions().DeleteByCollection(ctx, collectionID); err != nil {
			return err
		}
		return repo.Collections().Delete(ctx, collectionID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("collection deleted", "collection_id", collectionID)
	return nil
}

// validateSettings validates connector binding settings against the
// connector's settings schema.
func validateSettings(settingsSchema *domain.Schema, settings map[string]any) (any, []domain.ValidationIssue) {
	var value any = map[string]any{}
	if settings != nil {
		value = settings
	}
	return schema.Validate(settingsSchema, value)
}

// checkRemoteBinding verifies a remote binding before a collection is
// persisted: the connector must be registered, the binding settings must
// satisfy its settings schema, and the derivation must carry a
// fromRemoteDocument converter.
func checkRemoteBinding(registry driven.ConnectorRegistry, remote *domain.RemoteBinding, derivation domain.DerivationSettings) error {
	if remote == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("%w: %q", domain.ErrConnectorNotFound, remote.Connector)
	}
	connector, err := registry.Get(remote.Connector)
	if err != nil {
		return err
	}
	if settingsSchema := connector.SettingsSchema(); settingsSchema != nil {
		if _, issues := validateSettings(settingsSchema, remote.Settings); len(issues) > 0 {
			return &domain.ContentNotValidError{Issues: issues}
		}
	}
	if derivation.RemoteConverters == nil {
		return fmt.Errorf("remote binding requires a fromRemoteDocument converter")
	}
	return nil
}
