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

// Ensure syncService implements SyncService
var _ driving.SyncService = (*syncService)(nil)

// syncService reconciles connector deltas into local state.
//
// A down-sync run has three phases:
//  1. Read the binding and cursor (refreshing expired credentials).
//  2. Fetch the remote delta. This happens outside any transaction.
//  3. Apply the whole delta in one transaction, guarded by a savepoint:
//     any item failure rolls the batch back while the failure is still
//     recorded on the collection's sync state. The cursor only advances
//     with a fully applied batch, so failed runs are safe to retry.
type syncService struct {
	tx         driven.TxManager
	engine     driven.ScriptEngine
	connectors driven.ConnectorRegistry
	logger     *slog.Logger
}

// SyncServiceConfig holds dependencies for the sync service.
type SyncServiceConfig struct {
	Tx         driven.TxManager
	Engine     driven.ScriptEngine
	Connectors driven.ConnectorRegistry
	Logger     *slog.Logger
}

// NewSyncService creates a new SyncService.
func NewSyncService(cfg SyncServiceConfig) driving.SyncService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &syncService{
		tx:         cfg.Tx,
		engine:     cfg.Engine,
		connectors: cfg.Connectors,
		logger:     logger,
	}
}

// syncSetup is everything phase one reads out of the store.
type syncSetup struct {
	collection *domain.Collection
	connector  driven.Connector
	auth       *domain.AuthState
	cursor     string
}

// DownSync pulls the connector delta for the collection and reconciles it.
func (s *syncService) DownSync(ctx context.Context, collectionID string) (*domain.SyncResult, error) {
	setup, err := s.prepareSync(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("down-sync started",
		"collection_id", collectionID,
		"connector", setup.collection.Remote.Connector,
		"cursor", setup.cursor)

	changes, nextCursor, err := setup.connector.SyncDown(ctx, setup.collection.Remote.Settings, setup.auth, setup.cursor)
	if err != nil {
		if recErr := s.recordFailure(ctx, collectionID, setup.cursor, err.Error()); recErr != nil {
			return nil, recErr
		}
		return &domain.SyncResult{
			CollectionID: collectionID,
			Cursor:       setup.cursor,
			Error:        err.Error(),
		}, nil
	}

	return s.applyChanges(ctx, setup, changes, nextCursor)
}

// prepareSync reads the binding and cursor, refreshing expired credentials
// in place.
func (s *syncService) prepareSync(ctx context.Context, collectionID string) (*syncSetup, error) {
	var setup *syncSetup
	err := driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, collectionID)
		if err != nil {
			return err
		}
		if collection.Remote == nil {
			return domain.ErrNoRemoteBinding
		}

		connector, err := s.connectors.Get(collection.Remote.Connector)
		if err != nil {
			return err
		}

		auth := collection.Remote.Auth
		if connector.AuthenticationStrategy() == driven.AuthStrategyOAuthPKCE {
			if auth == nil {
				return domain.ErrNotAuthenticated
			}
			if authExpired(auth, time.Now().UTC()) {
				refreshed, err := connector.RefreshAuth(ctx, auth)
				if err != nil {
					return fmt.Errorf("refreshing credentials: %w", err)
				}
				updated := *collection
				binding := *collection.Remote
				binding.Auth = refreshed
				updated.Remote = &binding
				if err := repo.Collections().Save(ctx, &updated); err != nil {
					return err
				}
				collection = &updated
				auth = refreshed
			}
		}

		state, err := repo.SyncStates().Get(ctx, collectionID)
		if errors.Is(err, domain.ErrCollectionNotFound) {
			state = domain.NewSyncState(collectionID)
			if err := repo.SyncStates().Save(ctx, state); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		setup = &syncSetup{
			collection: collection,
			connector:  connector,
			auth:       auth,
			cursor:     state.Down.Cursor,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return setup, nil
}

// applyChanges reconciles one fetched delta inside a single transaction.
func (s *syncService) applyChanges(ctx context.Context, setup *syncSetup, changes *domain.RemoteChanges, nextCursor string) (*domain.SyncResult, error) {
	collectionID := setup.collection.ID
	var result *domain.SyncResult

	err := driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		state, err := repo.SyncStates().Get(ctx, collectionID)
		if err != nil {
			return err
		}
		// Another run advanced the cursor while we were fetching; this
		// delta no longer applies.
		if state.Down.Cursor != setup.cursor {
			return domain.ErrTxConflict
		}

		cv, err := repo.CollectionVersions().LatestByCollection(ctx, collectionID)
		if err != nil {
			return err
		}

		sp, err := repo.CreateSavepoint()
		if err != nil {
			return err
		}

		stats := domain.SyncStats{}
		var itemErrors []domain.SyncItemError

		for _, remote := range changes.AddedOrModified {
			if err := s.applyRemoteDocument(ctx, repo, setup, cv, remote, &stats); err != nil {
				itemErrors = append(itemErrors, domain.SyncItemError{
					RemoteID: remote.ID,
					Message:  err.Error(),
				})
			}
		}

		for _, remoteID := range changes.Deleted {
			document, err := repo.Documents().GetByRemoteID(ctx, collectionID, remoteID)
			if errors.Is(err, domain.ErrDocumentNotFound) {
				stats.Unchanged++
				continue
			}
			if err != nil {
				itemErrors = append(itemErrors, domain.SyncItemError{RemoteID: remoteID, Message: err.Error()})
				continue
			}
			if err := deleteDocumentTx(ctx, repo, document); err != nil {
				itemErrors = append(itemErrors, domain.SyncItemError{RemoteID: remoteID, Message: err.Error()})
				continue
			}
			stats.DocumentsDeleted++
		}

		now := time.Now().UTC()
		updated := *state
		if len(itemErrors) > 0 {
			// All-or-nothing: undo the partial batch, keep the failure on
			// record, leave the cursor where it was.
			if err := repo.RollbackToSavepoint(sp); err != nil {
				return err
			}
			stats.Errors = len(itemErrors)
			batchErr := &domain.SyncingChangesFailedError{ItemErrors: itemErrors}
			updated.Down.Status = domain.SyncStatusLastSyncFailed
			updated.Down.LastError = batchErr.Error()
			if err := repo.SyncStates().Save(ctx, &updated); err != nil {
				return err
			}
			result = &domain.SyncResult{
				CollectionID: collectionID,
				Stats:        stats,
				Cursor:       setup.cursor,
				Error:        batchErr.Error(),
			}
			return nil
		}

		updated.Down.Status = domain.SyncStatusLastSyncSucceeded
		updated.Down.LastError = ""
		updated.Down.LastSuccessAt = &now
		updated.Down.Cursor = nextCursor
		if err := repo.SyncStates().Save(ctx, &updated); err != nil {
			return err
		}
		result = &domain.SyncResult{
			CollectionID: collectionID,
			Success:      true,
			Stats:        stats,
			Cursor:       nextCursor,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("down-sync finished",
		"collection_id", collectionID,
		"success", result.Success,
		"created", result.Stats.DocumentsCreated,
		"appended", result.Stats.VersionsAppended,
		"deleted", result.Stats.DocumentsDeleted,
		"unchanged", result.Stats.Unchanged,
		"errors", result.Stats.Errors)
	return result, nil
}

// applyRemoteDocument reconciles one added-or-modified remote record.
func (s *syncService) applyRemoteDocument(
	ctx context.Context,
	repo driven.Repository,
	setup *syncSetup,
	cv *domain.CollectionVersion,
	remote domain.RemoteDocument,
	stats *domain.SyncStats,
) error {
	if remoteSchema := setup.connector.RemoteDocumentSchema(); remoteSchema != nil {
		if _, issues := schema.Validate(remoteSchema, remote.Content); len(issues) > 0 {
			return &domain.ContentNotValidError{Issues: issues}
		}
	}

	document, err := repo.Documents().GetByRemoteID(ctx, setup.collection.ID, remote.ID)
	switch {
	case err == nil:
		latest, err := repo.DocumentVersions().LatestByDocument(ctx, document.ID)
		if err != nil {
			return err
		}
		// A remote version id differing in any way (including a regression)
		// means new remote content.
		if latest.RemoteVersionID == remote.VersionID {
			stats.Unchanged++
			return nil
		}

		content, err := convertRemoteDocument(ctx, s.engine, cv.Derivation, remote.Content)
		if err != nil {
			return err
		}
		opts := driving.CreateDocumentOptions{
			SkipDuplicateCheck: true,
			CreatedBy:          domain.CreatorConnector,
			RemoteID:           remote.ID,
			RemoteVersionID:    remote.VersionID,
		}
		prepared, err := prepareVersion(ctx, repo, s.engine, cv, content, opts, document.ID)
		if err != nil {
			return err
		}
		version := &domain.DocumentVersion{
			ID:                  domain.NewID(),
			DocumentID:          document.ID,
			CollectionID:        setup.collection.ID,
			CollectionVersionID: cv.ID,
			PreviousVersionID:   latest.ID,
			Content:             prepared.Content,
			ContentBlockingKeys: prepared.BlockingKeys,
			ReferencedDocuments: prepared.References,
			ContentSummary:      prepared.Summary,
			CreatedBy:           domain.CreatorConnector,
			RemoteID:            remote.ID,
			RemoteVersionID:     remote.VersionID,
			CreatedAt:           time.Now().UTC(),
		}
		if err := persistVersion(ctx, repo, version, prepared); err != nil {
			return err
		}
		stats.VersionsAppended++
		return nil

	case errors.Is(err, domain.ErrDocumentNotFound):
		content, err := convertRemoteDocument(ctx, s.engine, cv.Derivation, remote.Content)
		if err != nil {
			return err
		}
		// Duplicate detection stays on for fresh remote documents so a
		// re-bound source does not double existing records.
		opts := driving.CreateDocumentOptions{
			CreatedBy:       domain.CreatorConnector,
			RemoteID:        remote.ID,
			RemoteVersionID: remote.VersionID,
		}
		prepared, err := prepareVersion(ctx, repo, s.engine, cv, content, opts, "")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		document := &domain.Document{
			ID:           domain.NewID(),
			CollectionID: setup.collection.ID,
			RemoteID:     remote.ID,
			CreatedAt:    now,
		}
		if err := repo.Documents().Save(ctx, document); err != nil {
			return err
		}
		version := &domain.DocumentVersion{
			ID:                  domain.NewID(),
			DocumentID:          document.ID,
			CollectionID:        setup.collection.ID,
			CollectionVersionID: cv.ID,
			Content:             prepared.Content,
			ContentBlockingKeys: prepared.BlockingKeys,
			ReferencedDocuments: prepared.References,
			ContentSummary:      prepared.Summary,
			CreatedBy:           domain.CreatorConnector,
			RemoteID:            remote.ID,
			RemoteVersionID:     remote.VersionID,
			CreatedAt:           now,
		}
		if err := persistVersion(ctx, repo, version, prepared); err != nil {
			return err
		}
		stats.DocumentsCreated++
		return nil

	default:
		return err
	}
}

// recordFailure stores a fetch-phase failure on the sync state without
// touching the cursor.
func (s *syncService) recordFailure(ctx context.Context, collectionID, cursor, message string) error {
	return driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		state, err := repo.SyncStates().Get(ctx, collectionID)
		if err != nil {
			return err
		}
		if state.Down.Cursor != cursor {
			return nil // a later run already moved on
		}
		updated := *state
		updated.Down.Status = domain.SyncStatusLastSyncFailed
		updated.Down.LastError = message
		return repo.SyncStates().Save(ctx, &updated)
	})
}

// UpSync pushes local changes to the connector. The shipped connectors are
// pull-only.
func (s *syncService) UpSync(ctx context.Context, collectionID string) (*domain.SyncResult, error) {
	var connector driven.Connector
	err := s.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, collectionID)
		if err != nil {
			return err
		}
		if collection.Remote == nil {
			return domain.ErrNoRemoteBinding
		}
		connector, err = s.connectors.Get(collection.Remote.Connector)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !connector.SupportsUpSync() {
		return nil, domain.ErrConnectorDoesNotSupportUpSyncing
	}
	return nil, fmt.Errorf("up-sync not implemented for connector %q", connector.Type())
}

// GetSyncState returns the collection's recorded sync state.
func (s *syncService) GetSyncState(ctx context.Context, collectionID string) (*domain.SyncState, error) {
	var result *domain.SyncState
	err := s.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
		if _, err := repo.Collections().Get(ctx, collectionID); err != nil {
			return err
		}
		state, err := repo.SyncStates().Get(ctx, collectionID)
		if errors.Is(err, domain.ErrCollectionNotFound) {
			result = domain.NewSyncState(collectionID)
			return nil
		}
		if err != nil {
			return err
		}
		result = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
