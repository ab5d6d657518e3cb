package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driving"
	"github.com/custodia-labs/docbase-core/internal/schema"
)

const txAttempts = 3

// Ensure documentService implements DocumentService
var _ driving.DocumentService = (*documentService)(nil)

// documentService implements the DocumentService interface. Every mutation
// runs the full write pipeline (validate, extract references, derive keys
// and summary, dedup, persist) inside one serializable transaction.
type documentService struct {
	tx     driven.TxManager
	engine driven.ScriptEngine
	logger *slog.Logger
}

// DocumentServiceConfig holds dependencies for the document service.
type DocumentServiceConfig struct {
	Tx     driven.TxManager
	Engine driven.ScriptEngine
	Logger *slog.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(cfg DocumentServiceConfig) driving.DocumentService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &documentService{tx: cfg.Tx, engine: cfg.Engine, logger: logger}
}

// preparedVersion is the outcome of the write pipeline before persistence.
type preparedVersion struct {
	Content      any
	BlockingKeys []string
	References   []domain.DocumentRefTarget
	FileIDs      []string
	Summary      *domain.ContentSummary
	Chunks       []string
}

// prepareVersion validates content against the collection version's schema,
// verifies referenced documents and files exist, derives blocking keys and
// checks for duplicates, and derives the display summary. Only the summary
// derivation is allowed to fail softly.
func prepareVersion(
	ctx context.Context,
	repo driven.Repository,
	engine driven.ScriptEngine,
	cv *domain.CollectionVersion,
	content any,
	opts driving.CreateDocumentOptions,
	excludeDocumentID string,
) (*preparedVersion, error) {
	canonical, issues := schema.Validate(cv.Schema, content)
	if len(issues) > 0 {
		return nil, &domain.ContentNotValidError{Issues: issues}
	}

	refs, err := extractRefs(cv.Schema, canonical)
	if err != nil {
		return nil, &domain.UnexpectedError{Cause: err}
	}

	exempt := map[string]bool{}
	for _, id := range opts.ExemptMissingReferences {
		exempt[id] = true
	}
	var missing []domain.DocumentRefTarget
	for _, target := range refs.Documents {
		if exempt[target.DocumentID] {
			continue
		}
		doc, err := repo.Documents().Get(ctx, target.DocumentID)
		if err != nil || (target.CollectionID != "" && doc.CollectionID != target.CollectionID) {
			missing = append(missing, target)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ReferencedDocumentsNotFoundError{References: missing}
	}

	var missingFiles []string
	for _, fileID := range refs.FileIDs {
		if _, err := repo.Files().Get(ctx, fileID); err != nil {
			missingFiles = append(missingFiles, fileID)
		}
	}
	if len(missingFiles) > 0 {
		return nil, &domain.FilesNotFoundError{FileIDs: missingFiles}
	}

	keys, err := deriveBlockingKeys(ctx, engine, cv.Derivation, canonical)
	if err != nil {
		return nil, err
	}

	if !opts.SkipDuplicateCheck && len(keys) > 0 {
		hits, err := repo.DocumentVersions().FindLatestByBlockingKeys(ctx, cv.CollectionID, keys, excludeDocumentID)
		if err != nil {
			return nil, &domain.UnexpectedError{Cause: err}
		}
		if len(hits) > 0 {
			duplicate, err := repo.Documents().Get(ctx, hits[0].DocumentID)
			if err != nil {
				return nil, &domain.UnexpectedError{Cause: err}
			}
			return nil, &domain.DuplicateDocumentDetectedError{
				DuplicateDocument: duplicate,
				ConflictingKeys:   intersect(keys, hits[0].ContentBlockingKeys),
			}
		}
	}

	chunks, err := chunkContent(cv.Schema, canonical)
	if err != nil {
		return nil, &domain.UnexpectedError{Cause: err}
	}

	return &preparedVersion{
		Content:      canonical,
		BlockingKeys: keys,
		References:   refs.Documents,
		FileIDs:      refs.FileIDs,
		Summary:      deriveSummary(ctx, engine, cv.Derivation, canonical),
		Chunks:       chunks,
	}, nil
}

func intersect(a, b []string) []string {
	inB := map[string]bool{}
	for _, key := range b {
		inB[key] = true
	}
	var out []string
	for _, key := range a {
		if inB[key] {
			out = append(out, key)
		}
	}
	return out
}

// persistVersion stores the version as the document's latest, replaces the
// document's chunks, and records file back-references.
func persistVersion(ctx context.Context, repo driven.Repository, version *domain.DocumentVersion, prepared *preparedVersion) error {
	if err := repo.DocumentVersions().SaveAsLatest(ctx, version); err != nil {
		return err
	}

	if err := repo.Chunks().DeleteByDocument(ctx, version.DocumentID); err != nil {
		return err
	}
	for i, text := range prepared.Chunks {
		chunk := &domain.Chunk{
			ID:                domain.NewID(),
			DocumentID:        version.DocumentID,
			DocumentVersionID: version.ID,
			CollectionID:      version.CollectionID,
			Content:           text,
			Position:          i,
		}
		if err := repo.Chunks().Save(ctx, chunk); err != nil {
			return err
		}
	}

	for _, fileID := range prepared.FileIDs {
		file, err := repo.Files().Get(ctx, fileID)
		if err != nil {
			return err
		}
		updated := *file
		updated.References = append(append([]domain.FileReference{}, file.References...), domain.FileReference{
			CollectionID:      version.CollectionID,
			DocumentID:        version.DocumentID,
			DocumentVersionID: version.ID,
		})
		if err := repo.Files().Save(ctx, &updated); err != nil {
			return err
		}
	}
	return nil
}

// CreateDocument creates a document with its first version.
func (s *documentService) CreateDocument(ctx context.Context, collectionID string, content any, opts driving.CreateDocumentOptions) (*driving.DocumentWithVersion, error) {
	if opts.CreatedBy == "" {
		opts.CreatedBy = domain.CreatorUser
	}

	var result *driving.DocumentWithVersion
	err := driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, collectionID)
		if err != nil {
			return err
		}
		// Bound collections are written by the sync engine only.
		if collection.Remote != nil && opts.CreatedBy != domain.CreatorConnector {
			return domain.ErrRemoteCollection
		}

		cv, err := repo.CollectionVersions().LatestByCollection(ctx, collectionID)
		if err != nil {
			return err
		}

		prepared, err := prepareVersion(ctx, repo, s.engine, cv, content, opts, "")
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		document := &domain.Document{
			ID:           domain.NewID(),
			CollectionID: collectionID,
			RemoteID:     opts.RemoteID,
			CreatedAt:    now,
		}
		if err := repo.Documents().Save(ctx, document); err != nil {
			return err
		}

		version := &domain.DocumentVersion{
			ID:                  domain.NewID(),
			DocumentID:          document.ID,
			CollectionID:        collectionID,
			CollectionVersionID: cv.ID,
			Content:             prepared.Content,
			ContentBlockingKeys: prepared.BlockingKeys,
			ReferencedDocuments: prepared.References,
			ContentSummary:      prepared.Summary,
			CreatedBy:           opts.CreatedBy,
			RemoteID:            opts.RemoteID,
			RemoteVersionID:     opts.RemoteVersionID,
			CreatedAt:           now,
		}
		if err := persistVersion(ctx, repo, version, prepared); err != nil {
			return err
		}

		result = &driving.DocumentWithVersion{Document: document, Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("document created",
		"collection_id", collectionID,
		"document_id", result.Document.ID,
		"created_by", string(opts.CreatedBy))
	return result, nil
}

// CreateDocumentVersion appends a version to an existing document.
func (s *documentService) CreateDocumentVersion(ctx context.Context, collectionID, documentID, expectedPreviousVersionID string, content any, opts driving.CreateDocumentOptions) (*driving.DocumentWithVersion, error) {
	if opts.CreatedBy == "" {
		opts.CreatedBy = domain.CreatorUser
	}

	var result *driving.DocumentWithVersion
	err := driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, collectionID)
		if err != nil {
			return err
		}
		if collection.Remote != nil && opts.CreatedBy != domain.CreatorConnector {
			return domain.ErrRemoteCollection
		}

		document, err := repo.Documents().Get(ctx, documentID)
		if err != nil {
			return err
		}
		if document.CollectionID != collectionID {
			return domain.ErrDocumentNotFound
		}

		latest, err := repo.DocumentVersions().LatestByDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if latest.ID != expectedPreviousVersionID {
			return domain.ErrVersionIDNotMatching
		}

		cv, err := repo.CollectionVersions().LatestByCollection(ctx, collectionID)
		if err != nil {
			return err
		}

		prepared, err := prepareVersion(ctx, repo, s.engine, cv, content, opts, documentID)
		if err != nil {
			return err
		}

		version := &domain.DocumentVersion{
			ID:                  domain.NewID(),
			DocumentID:          documentID,
			CollectionID:        collectionID,
			CollectionVersionID: cv.ID,
			PreviousVersionID:   latest.ID,
			Content:             prepared.Content,
			ContentBlockingKeys: prepared.BlockingKeys,
			ReferencedDocuments: prepared.References,
			ContentSummary:      prepared.Summary,
			CreatedBy:           opts.CreatedBy,
			RemoteID:            opts.RemoteID,
			RemoteVersionID:     opts.RemoteVersionID,
			CreatedAt:           time.Now().UTC(),
		}
		if err := persistVersion(ctx, repo, version, prepared); err != nil {
			return err
		}

		result = &driving.DocumentWithVersion{Document: document, Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("document version appended",
		"document_id", documentID,
		"version_id", result.Version.ID)
	return result, nil
}

// GetDocument returns the document with its latest version.
func (s *documentService) GetDocument(ctx context.Context, documentID string) (*driving.DocumentWithVersion, error) {
	var result *driving.DocumentWithVersion
	err := s.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
		document, err := repo.Documents().Get(ctx, documentID)
		if err != nil {
			return err
		}
		version, err := repo.DocumentVersions().LatestByDocument(ctx, documentID)
		if err != nil {
			return err
		}
		result = &driving.DocumentWithVersion{Document: document, Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListDocuments returns the collection's documents with latest versions.
func (s *documentService) ListDocuments(ctx context.Context, collectionID string) ([]*driving.DocumentWithVersion, error) {
	var result []*driving.DocumentWithVersion
	err := s.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
		if _, err := repo.Collections().Get(ctx, collectionID); err != nil {
			return err
		}
		documents, err := repo.Documents().ListByCollection(ctx, collectionID)
		if err != nil {
			return err
		}
		result = make([]*driving.DocumentWithVersion, 0, len(documents))
		for _, document := range documents {
			version, err := repo.DocumentVersions().LatestByDocument(ctx, document.ID)
			if err != nil {
				return err
			}
			result = append(result, &driving.DocumentWithVersion{Document: document, Version: version})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteDocument removes the document with its versions, chunks, and file
// back-references.
func (s *documentService) DeleteDocument(ctx context.Context, documentID string) error {
	err := driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		document, err := repo.Documents().Get(ctx, documentID)
		if err != nil {
			return err
		}
		return deleteDocumentTx(ctx, repo, document)
	})
	if err != nil {
		return err
	}
	s.logger.Info("document deleted", "document_id", documentID)
	return nil
}

// deleteDocumentTx cascades a document deletion within an open transaction.
// Files left without references are removed with it.
func deleteDocumentTx(ctx context.Context, repo driven.Repository, document *domain.Document) error {
	versions, err := repo.DocumentVersions().ListByDocument(ctx, document.ID)
	if err != nil {
		return err
	}

	fileIDs := map[string]bool{}
	for _, version := range versions {
		cv, err := repo.CollectionVersions().Get(ctx, version.CollectionVersionID)
		if err != nil {
			continue // collection version already removed mid-cascade
		}
		refs, err := extractRefs(cv.Schema, version.Content)
		if err != nil {
			return &domain.UnexpectedError{Cause: err}
		}
		for _, fileID := range refs.FileIDs {
			fileIDs[fileID] = true
		}
	}

	for fileID := range fileIDs {
		file, err := repo.Files().Get(ctx, fileID)
		if err != nil {
			continue
		}
		var kept []domain.FileReference
		for _, ref := range file.References {
			if ref.DocumentID != document.ID {
				kept = append(kept, ref)
			}
		}
		if len(kept) == 0 {
			if err := repo.Files().Delete(ctx, fileID); err != nil {
				return err
			}
			continue
		}
		updated := *file
		updated.References = kept
		if err := repo.Files().Save(ctx, &updated); err != nil {
			return err
		}
	}

	if err := repo.Chunks().DeleteByDocument(ctx, document.ID); err != nil {
		return err
	}
	if err := repo.DocumentVersions().DeleteByDocument(ctx, document.ID); err != nil {
		return err
	}
	return repo.Documents().Delete(ctx, document.ID)
}
