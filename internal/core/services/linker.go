package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driving"
)

// Ensure linker implements Linker
var _ driving.Linker = (*linker)(nil)

// linker creates collections and documents that forward-reference each other
// within one batch. Pass one assigns real identifiers to every placeholder;
// pass two rewrites schemas and content with the assignments; then the whole
// batch is persisted in a single transaction.
type linker struct {
	tx         driven.TxManager
	engine     driven.ScriptEngine
	connectors driven.ConnectorRegistry
	logger     *slog.Logger
}

// LinkerConfig holds dependencies for the linker.
type LinkerConfig struct {
	Tx         driven.TxManager
	Engine     driven.ScriptEngine
	Connectors driven.ConnectorRegistry
	Logger     *slog.Logger
}

// NewLinker creates a new Linker.
func NewLinker(cfg LinkerConfig) driving.Linker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &linker{tx: cfg.Tx, engine: cfg.Engine, connectors: cfg.Connectors, logger: logger}
}

// CreateBatch creates the batch atomically. Documents may reference other
// documents of the same batch before those exist; order within the batch
// does not matter.
func (l *linker) CreateBatch(ctx context.Context, entries []driving.BatchEntry) (*driving.BatchResult, error) {
	result := &driving.BatchResult{
		CollectionIDs: map[string]string{},
		DocumentIDs:   map[string]string{},
	}

	// Pass one: assign identifiers.
	for _, entry := range entries {
		switch {
		case entry.ProtoCollectionID != "":
			if entry.Collection == nil {
				return nil, fmt.Errorf("batch entry %q: missing collection request", entry.ProtoCollectionID)
			}
			if _, dup := result.CollectionIDs[entry.ProtoCollectionID]; dup {
				return nil, fmt.Errorf("batch entry %q: duplicate proto collection id", entry.ProtoCollectionID)
			}
			result.CollectionIDs[entry.ProtoCollectionID] = domain.NewID()

		case entry.ProtoDocumentID != "":
			if _, dup := result.DocumentIDs[entry.ProtoDocumentID]; dup {
				return nil, fmt.Errorf("batch entry %q: duplicate proto document id", entry.ProtoDocumentID)
			}
			result.DocumentIDs[entry.ProtoDocumentID] = domain.NewID()

		default:
			return nil, fmt.Errorf("batch entry without a proto id")
		}
	}

	// Every batch document is exempt from the existence check: it may be
	// created later in the same transaction.
	exempt := make([]string, 0, len(result.DocumentIDs))
	for _, id := range result.DocumentIDs {
		exempt = append(exempt, id)
	}

	err := driven.RunWithRetry(ctx, l.tx, txAttempts, func(repo driven.Repository) error {
		now := time.Now().UTC()

		// Collections first so document entries can target them.
		for _, entry := range entries {
			if entry.ProtoCollectionID == "" {
				continue
			}
			req := entry.Collection
			if req.Schema == nil {
				return fmt.Errorf("batch collection %q: schema is required", entry.ProtoCollectionID)
			}
			rewritten := rewriteSchema(req.Schema, result.CollectionIDs)
			if err := rewritten.Check(); err != nil {
				return fmt.Errorf("batch collection %q: %w", entry.ProtoCollectionID, err)
			}
			derivation, err := compileDerivation(l.engine, req.Derivation)
			if err != nil {
				return fmt.Errorf("batch collection %q: %w", entry.ProtoCollectionID, err)
			}
			if err := checkRemoteBinding(l.connectors, req.Remote, derivation); err != nil {
				return fmt.Errorf("batch collection %q: %w", entry.ProtoCollectionID, err)
			}

			collection := &domain.Collection{
				ID:        result.CollectionIDs[entry.ProtoCollectionID],
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
				Schema:       rewritten,
				Derivation:   derivation,
				CreatedAt:    now,
			}
			if err := repo.CollectionVersions().SaveAsLatest(ctx, version); err != nil {
				return err
			}
		}

		// Then documents, with placeholder references rewritten.
		for _, entry := range entries {
			if entry.ProtoDocumentID == "" {
				continue
			}
			collectionID := entry.InCollection
			if assigned, ok := result.CollectionIDs[collectionID]; ok {
				collectionID = assigned
			}
			if _, err := repo.Collections().Get(ctx, collectionID); err != nil {
				return fmt.Errorf("batch document %q: %w", entry.ProtoDocumentID, err)
			}

			cv, err := repo.CollectionVersions().LatestByCollection(ctx, collectionID)
			if err != nil {
				return err
			}

			content := rewriteContent(entry.Content, result)
			opts := driving.CreateDocumentOptions{
				ExemptMissingReferences: exempt,
				CreatedBy:               domain.CreatorUser,
			}
			prepared, err := prepareVersion(ctx, repo, l.engine, cv, content, opts, "")
			if err != nil {
				return fmt.Errorf("batch document %q: %w", entry.ProtoDocumentID, err)
			}

			document := &domain.Document{
				ID:           result.DocumentIDs[entry.ProtoDocumentID],
				CollectionID: collectionID,
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
				CreatedBy:           domain.CreatorUser,
				CreatedAt:           now,
			}
			if err := persistVersion(ctx, repo, version, prepared); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("batch created",
		"collections", len(result.CollectionIDs),
		"documents", len(result.DocumentIDs))
	return result, nil
}

// rewriteSchema deep-copies the schema, replacing proto collection ids in
// DocumentRef targets with their assignments.
func rewriteSchema(s *domain.Schema, collectionIDs map[string]string) *domain.Schema {
	out := &domain.Schema{Types: map[string]*domain.TypeDefinition{}, RootType: s.RootType}
	for name, def := range s.Types {
		out.Types[name] = rewriteTypeDef(def, collectionIDs)
	}
	return out
}

func rewriteTypeDef(def *domain.TypeDefinition, collectionIDs map[string]string) *domain.TypeDefinition {
	if def == nil {
		return nil
	}
	out := *def
	if assigned, ok := collectionIDs[def.TargetCollectionID]; ok {
		out.TargetCollectionID = assigned
	}
	if def.Properties != nil {
		out.Properties = make(map[string]domain.Property, len(def.Properties))
		for name, prop := range def.Properties {
			out.Properties[name] = domain.Property{
				Type:     rewriteTypeDef(prop.Type, collectionIDs),
				Nullable: prop.Nullable,
			}
		}
	}
	out.Items = rewriteTypeDef(def.Items, collectionIDs)
	return &out
}

// rewriteContent deep-copies content, replacing proto ids in documentId and
// collectionId positions with their assignments.
func rewriteContent(value any, result *driving.BatchResult) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			switch key {
			case "documentId":
				if id, ok := item.(string); ok {
					if assigned, found := result.DocumentIDs[id]; found {
						out[key] = assigned
						continue
					}
				}
			case "collectionId":
				if id, ok := item.(string); ok {
					if assigned, found := result.CollectionIDs[id]; found {
						out[key] = assigned
						continue
					}
				}
			}
			out[key] = rewriteContent(item, result)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = rewriteContent(item, result)
		}
		return out
	default:
		return value
	}
}
