package services

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driving"
)

func newDocumentFixture(t *testing.T) (driving.DocumentService, driving.CollectionService, driving.FileService, *driving.CollectionWithVersion) {
	t.Helper()
	db := newTestStore(t)
	engine := newTestEngine()

	collections := NewCollectionService(CollectionServiceConfig{
		Tx:         db,
		Engine:     engine,
		Connectors: mocks.NewMockConnectorRegistry(),
	})
	documents := NewDocumentService(DocumentServiceConfig{Tx: db, Engine: engine})
	files := NewFileService(db)

	created, err := collections.CreateCollection(context.Background(), driving.CreateCollectionRequest{
		Settings:   domain.CollectionSettings{Name: "Books"},
		Schema:     bookSchema(),
		Derivation: bookDerivation(),
	})
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}
	return documents, collections, files, created
}

func TestCreateDocument(t *testing.T) {
	documents, _, _, collection := newDocumentFixture(t)
	ctx := context.Background()

	result, err := documents.CreateDocument(ctx, collection.Collection.ID, bookContent("The Go Programming Language", "978-0134190440"), driving.CreateDocumentOptions{})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	if result.Document.CollectionID != collection.Collection.ID {
		t.Errorf("collection id = %q", result.Document.CollectionID)
	}
	if result.Version.CollectionVersionID != collection.Version.ID {
		t.Errorf("collection version id = %q", result.Version.CollectionVersionID)
	}
	if result.Version.CreatedBy != domain.CreatorUser {
		t.Errorf("created by = %q, want user", result.Version.CreatedBy)
	}
	if !result.Version.Latest {
		t.Error("first version not marked latest")
	}

	if !result.Version.ContentSummary.OK() {
		t.Fatalf("summary failed: %s", result.Version.ContentSummary.Error)
	}
	if got := result.Version.ContentSummary.Data["0|sa|Title"]; got != "The Go Programming Language" {
		t.Errorf("summary title = %v", got)
	}

	if len(result.Version.ContentBlockingKeys) != 1 || result.Version.ContentBlockingKeys[0] != "isbn:978-0134190440" {
		t.Errorf("blocking keys = %v", result.Version.ContentBlockingKeys)
	}
}

func TestCreateDocumentInvalidContent(t *testing.T) {
	documents, _, _, collection := newDocumentFixture(t)

	_, err := documents.CreateDocument(context.Background(), collection.Collection.ID, map[string]any{
		"isbn":    42,
		"unknown": "x",
	}, driving.CreateDocumentOptions{})

	var notValid *domain.ContentNotValidError
	if !errors.As(err, &notValid) {
		t.Fatalf("err = %v, want ContentNotValidError", err)
	}
	// missing title, non-string isbn, unknown top-level property
	if len(notValid.Issues) != 3 {
		t.Errorf("issues = %v, want 3", notValid.Issues)
	}
}

func TestCreateDocumentDuplicateDetected(t *testing.T) {
	documents, _, _, collection := newDocumentFixture(t)
	ctx := context.Background()

	first, err := documents.CreateDocument(ctx, collection.Collection.ID, bookContent("First Edition", "978-1"), driving.CreateDocumentOptions{})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err = documents.CreateDocument(ctx, collection.Collection.ID, bookContent("Second Copy", "978-1"), driving.CreateDocumentOptions{})
	var duplicate *domain.DuplicateDocumentDetectedError
	if !errors.As(err, &duplicate) {
		t.Fatalf("err = %v, want DuplicateDocumentDetectedError", err)
	}
	if duplicate.DuplicateDocument.ID != first.Document.ID {
		t.Errorf("duplicate id = %q, want %q", duplicate.DuplicateDocument.ID, first.Document.ID)
	}
	if len(duplicate.ConflictingKeys) != 1 || duplicate.ConflictingKeys[0] != "isbn:978-1" {
		t.Errorf("conflicting keys = %v", duplicate.ConflictingKeys)
	}

	// The failed create leaves nothing behind.
	all, err := documents.ListDocuments(ctx, collection.Collection.ID)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("documents = %d, want 1", len(all))
	}

	// An explicit override creates the copy anyway.
	if _, err := documents.CreateDocument(ctx, collection.Collection.ID, bookContent("Second Copy", "978-1"), driving.CreateDocumentOptions{SkipDuplicateCheck: true}); err != nil {
		t.Fatalf("skip dedup create: %v", err)
	}
}

func TestCreateDocumentMissingReference(t *testing.T) {
	documents, _, _, collection := newDocumentFixture(t)
	ctx := context.Background()

	content := bookContent("Referencing", "")
	content["related"] = map[string]any{"documentId": "does-not-exist"}

	_, err := documents.CreateDocument(ctx, collection.Collection.ID, content, driving.CreateDocumentOptions{})
	var missing *domain.ReferencedDocumentsNotFoundError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want ReferencedDocumentsNotFoundError", err)
	}
	if len(missing.References) != 1 || missing.References[0].DocumentID != "does-not-exist" {
		t.Errorf("references = %v", missing.References)
	}

	// The exemption list tolerates the same reference.
	_, err = documents.CreateDocument(ctx, collection.Collection.ID, content, driving.CreateDocumentOptions{
		ExemptMissingReferences: []string{"does-not-exist"},
	})
	if err != nil {
		t.Fatalf("exempted create: %v", err)
	}
}

func TestCreateDocumentMissingFile(t *testing.T) {
	documents, _, _, collection := newDocumentFixture(t)

	content := bookContent("With Attachment", "")
	content["attachment"] = map[string]any{"fileId": "no-such-file"}

	_, err := documents.CreateDocument(context.Background(), collection.Collection.ID, content, driving.CreateDocumentOptions{})
	var missing *domain.FilesNotFoundError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want FilesNotFoundError", err)
	}
	if len(missing.FileIDs) != 1 || missing.FileIDs[0] != "no-such-file" {
		t.Errorf("file ids = %v", missing.FileIDs)
	}
}

func TestFileReferencesFollowDocumentLifecycle(t *testing.T) {
	documents, _, files, collection := newDocumentFixture(t)
	ctx := context.Background()

	file, err := files.CreateFile(ctx, []byte("cover image"))
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	content := bookContent("With Attachment", "")
	content["attachment"] = map[string]any{"fileId": file.ID}
	created, err := documents.CreateDocument(ctx, collection.Collection.ID, content, driving.CreateDocumentOptions{})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	stored, err := files.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if len(stored.References) != 1 || stored.References[0].DocumentID != created.Document.ID {
		t.Fatalf("references = %v", stored.References)
	}

	// Deleting the only referencing document removes the file with it.
	if err := documents.DeleteDocument(ctx, created.Document.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := files.GetFile(ctx, file.ID); !errors.Is(err, domain.ErrFileNotFound) {
		t.Errorf("err = %v, want ErrFileNotFound", err)
	}
}

func TestCreateDocumentVersion(t *testing.T) {
	documents, _, _, collection := newDocumentFixture(t)
	ctx := context.Background()

	created, err := documents.CreateDocument(ctx, collection.Collection.ID, bookContent("v1", ""), driving.CreateDocumentOptions{})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	appended, err := documents.CreateDocumentVersion(ctx, collection.Collection.ID, created.Document.ID, created.Version.ID, bookContent("v2", ""), driving.CreateDocumentOptions{})
	if err != nil {
		t.Fatalf("CreateDocumentVersion: %v", err)
	}
	if appended.Version.PreviousVersionID != created.Version.ID {
		t.Errorf("previous version id = %q", appended.Version.PreviousVersionID)
	}

	latest, err := documents.GetDocument(ctx, created.Document.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if latest.Version.ID != appended.Version.ID {
		t.Errorf("latest = %q, want %q", latest.Version.ID, appended.Version.ID)
	}

	// A stale expected id is rejected.
	_, err = documents.CreateDocumentVersion(ctx, collection.Collection.ID, created.Document.ID, created.Version.ID, bookContent("v3", ""), driving.CreateDocumentOptions{})
	if !errors.Is(err, domain.ErrVersionIDNotMatching) {
		t.Errorf("err = %v, want ErrVersionIDNotMatching", err)
	}
}

func TestCreateDocumentOnRemoteCollection(t *testing.T) {
	db := newTestStore(t)
	engine := newTestEngine()

	connector := mocks.NewMockConnector()
	connector.TypeFn = func() string { return "githubdocs" }

	collections := NewCollectionService(CollectionServiceConfig{
		Tx:         db,
		Engine:     engine,
		Connectors: mocks.NewMockConnectorRegistry(connector),
	})
	documents := NewDocumentService(DocumentServiceConfig{Tx: db, Engine: engine})

	derivation := bookDerivation()
	derivation.RemoteConverters = &domain.RemoteConverters{
		FromRemoteDocument: domain.ScriptModule{Source: "local remote = ...\nreturn remote\n"},
	}
	created, err := collections.CreateCollection(context.Background(), driving.CreateCollectionRequest{
		Settings:   domain.CollectionSettings{Name: "Remote Books"},
		Schema:     bookSchema(),
		Derivation: derivation,
		Remote:     &domain.RemoteBinding{Connector: "githubdocs"},
	})
	if err != nil {
		t.Fatalf("creating remote collection: %v", err)
	}

	_, err = documents.CreateDocument(context.Background(), created.Collection.ID, bookContent("Direct Write", ""), driving.CreateDocumentOptions{})
	if !errors.Is(err, domain.ErrRemoteCollection) {
		t.Errorf("err = %v, want ErrRemoteCollection", err)
	}

	// The sync engine may write.
	_, err = documents.CreateDocument(context.Background(), created.Collection.ID, bookContent("Synced", ""), driving.CreateDocumentOptions{
		CreatedBy: domain.CreatorConnector,
		RemoteID:  "r-1",
	})
	if err != nil {
		t.Errorf("connector create: %v", err)
	}
}

func TestDocumentChunks(t *testing.T) {
	db := newTestStore(t)
	engine := newTestEngine()

	collections := NewCollectionService(CollectionServiceConfig{
		Tx:         db,
		Engine:     engine,
		Connectors: mocks.NewMockConnectorRegistry(),
	})
	documents := NewDocumentService(DocumentServiceConfig{Tx: db, Engine: engine})

	created, err := collections.CreateCollection(context.Background(), driving.CreateCollectionRequest{
		Settings:   domain.CollectionSettings{Name: "Books"},
		Schema:     bookSchema(),
		Derivation: bookDerivation(),
	})
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	content := bookContent("Chunked", "")
	content["body"] = "First paragraph.\n\nSecond paragraph."
	doc, err := documents.CreateDocument(context.Background(), created.Collection.ID, content, driving.CreateDocumentOptions{})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	err = db.RunInSerializableTransaction(context.Background(), func(repo driven.Repository) error {
		chunks, err := repo.Chunks().ListByDocument(context.Background(), doc.Document.ID)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			t.Fatal("no chunks stored")
		}
		if chunks[0].DocumentVersionID != doc.Version.ID {
			t.Errorf("chunk version id = %q", chunks[0].DocumentVersionID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspecting chunks: %v", err)
	}
}
